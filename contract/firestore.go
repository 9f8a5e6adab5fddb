package contract

import "time"

// FirestoreUser is stored at users/{email}.
type FirestoreUser struct {
	Email    string    `firestore:"email"`
	PhotoURL string    `firestore:"photoURL"`
	LastSeen time.Time `firestore:"lastSeen"`
}

type FirestoreConversation struct {
	Users []string `firestore:"users"`
}

// FirestoreMessage is a document of the messages collection. SentAt is
// written as a server timestamp.
type FirestoreMessage struct {
	ConversationID string    `firestore:"conversation_id"`
	SentAt         time.Time `firestore:"sent_at"`
	Text           string    `firestore:"text"`
	User           string    `firestore:"user"`
}
