package chatter

import "net/http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session", s.signIn)
	mux.HandleFunc("DELETE /session", s.signOut)

	mux.HandleFunc("GET /conversations", s.listConversations)
	mux.HandleFunc("POST /conversations", s.createConversation)
	mux.HandleFunc("GET /conversations/stream", s.streamConversations)

	mux.HandleFunc("GET /conversations/{id}", s.conversation)
	mux.HandleFunc("POST /conversations/{id}/messages", s.sendMessage)
	mux.HandleFunc("GET /conversations/{id}/socket", s.threadSocket)

	return mux
}
