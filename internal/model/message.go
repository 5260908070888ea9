package model

// Message is the DB entity persisted in messages table. ts and created_at are kept
// as strings: ts is an opaque client-supplied ordering key, created_at is an
// ISO-8601 UTC instant assigned on first insert.
type Message struct {
	MessageID string  `db:"message_id"  json:"message_id"`
	From      string  `db:"from_msisdn" json:"from"`
	To        string  `db:"to_msisdn"   json:"to"`
	TS        string  `db:"ts"          json:"ts"`
	Text      *string `db:"text"        json:"text"`
	CreatedAt string  `db:"created_at"  json:"created_at"`
}

// Filter narrows a message listing. Empty fields are not applied; set fields are ANDed.
type Filter struct {
	From  string // exact from_msisdn
	Since string // ts >= Since, string comparison
	Q     string // case-insensitive substring of text
}

// Page is one slice of a filtered listing plus the total number of matches.
type Page struct {
	Data   []Message `json:"data"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

type SenderCount struct {
	From  string `db:"from_msisdn" json:"from"`
	Count int    `db:"cnt"         json:"count"`
}

// Stats aggregates the whole store. FirstMessageTS/LastMessageTS are the
// lexicographic min/max of ts and are nil on an empty store.
type Stats struct {
	TotalMessages     int           `json:"total_messages"`
	SendersCount      int           `json:"senders_count"`
	MessagesPerSender []SenderCount `json:"messages_per_sender"`
	FirstMessageTS    *string       `json:"first_message_ts"`
	LastMessageTS     *string       `json:"last_message_ts"`
}
