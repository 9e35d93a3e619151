package bot

import "github.com/thomasfsr/gymlog/src/menu"

type Kind string

const (
	KindCommand Kind = "command"
	KindButton  Kind = "button"
	KindText    Kind = "text"
	KindFile    Kind = "file"
)

type File struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Event is one inbound user action, already normalised by a transport.
type Event struct {
	UserID int64 `json:"user_id"`
	// Name is the user's display name, if the platform provides one.
	Name    string `json:"name,omitempty"`
	Kind    Kind   `json:"kind"`
	Command string `json:"command,omitempty"`
	Payload string `json:"payload,omitempty"`
	Text    string `json:"text,omitempty"`
	File    *File  `json:"file,omitempty"`
}

type Response struct {
	Text    string        `json:"text"`
	Options []menu.Option `json:"options,omitempty"`
}

func Command(userID int64, cmd string) Event {
	return Event{UserID: userID, Kind: KindCommand, Command: cmd}
}

func Button(userID int64, payload string) Event {
	return Event{UserID: userID, Kind: KindButton, Payload: payload}
}

func Text(userID int64, text string) Event {
	return Event{UserID: userID, Kind: KindText, Text: text}
}

func Upload(userID int64, name string, data []byte) Event {
	return Event{UserID: userID, Kind: KindFile, File: &File{Name: name, Data: data}}
}
