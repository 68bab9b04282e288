package models

// EventStreamReady is the first message on the event stream.
type EventStreamReady struct {
	Message   string `json:"message" example:"event stream connected" doc:"Connection confirmation"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Connection timestamp"`
}

// LogLevelBody sets the level of one logging module.
type LogLevelBody struct {
	Module string `json:"module" example:"capture" minLength:"1" doc:"Logging module name"`
	Level  string `json:"level" enum:"debug,info,warn,error,none" example:"debug" doc:"New level"`
}

type LogLevelRequest struct {
	Body LogLevelBody
}

type LogLevelResponse struct {
	Body LogLevelBody
}
