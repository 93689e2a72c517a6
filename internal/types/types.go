package types

// Message is a chat message as stored in room history and sent to clients.
type Message struct {
	Id       string `json:"id"`
	ClientId string `json:"clientId"`
	Username string `json:"username"`
	Text     string `json:"text"`
	// Ts is milliseconds since the Unix epoch.
	Ts int64 `json:"ts"`
}

type Member struct {
	ClientId string `json:"clientId"`
	Username string `json:"username"`
}

type RoomInfo struct {
	Name     string `json:"name"`
	Members  int    `json:"members"`
	Messages int    `json:"messages"`
}
