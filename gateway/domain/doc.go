// Package domain define os tipos do gateway: descritores de requisição e
// resposta, alvos upstream, rotas dinâmicas e a taxonomia de erros.
//
// Usa http.Header apenas como multimapa de cabeçalhos; nada aqui faz I/O de rede.
package domain
