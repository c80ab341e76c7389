package domain

// InboundMessage is the wire payload a client sends to the relay.
type InboundMessage struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}
