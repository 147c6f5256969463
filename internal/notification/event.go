package notification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// OperationType classifies a notification as a data operation or a control signal.
type OperationType string

// Supported operation types.
const (
	OperationInsert      OperationType = "insert"
	OperationDelete      OperationType = "delete"
	OperationUpdate      OperationType = "update"
	OperationInitialize  OperationType = "initialize"
	OperationUserMessage OperationType = "user-message"
)

// ErrMalformedPayload is returned when a message body cannot be decoded into an Event.
var ErrMalformedPayload = errors.New("malformed notification payload")

// Event is one status notification emitted by a batch job.
type Event struct {
	// JobID is the 1-based lane number of the reporting job.
	JobID int `json:"JobId__c"`
	// Jobs is the number of parallel jobs in the process.
	Jobs int `json:"Jobs__c"`
	// JobUnitsExecuted counts units the job has completed so far.
	JobUnitsExecuted int64 `json:"JobUnitsExecuted__c"`
	JobIsCompleted   bool  `json:"JobIsCompleted__c"`
	JobHasFailed     bool  `json:"JobHasFailed__c"`
	JobIsTerminated  bool  `json:"JobIsTerminated__c"`
	// Message is a log or user line; it may be empty.
	Message       string        `json:"Message__c"`
	OperationType OperationType `json:"OperationType__c"`
	// ProcessID correlates every notification of one batch run.
	ProcessID             string `json:"ProcessId__c"`
	ProcessUnitsToExecute int64  `json:"ProcessUnitsToExecute__c"`
	TotalJobUnits         int64  `json:"TotalJobUnits__c"`
}

// envelope mirrors the streaming API wrapper around the payload.
type envelope struct {
	Data *struct {
		Payload json.RawMessage `json:"payload"`
	} `json:"data"`
}

// Decode parses a message body. Both the bare payload object and the
// streaming envelope {"data":{"payload":{...}}} are accepted.
func Decode(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if env.Data != nil && len(env.Data.Payload) > 0 {
		trimmed = env.Data.Payload
	}
	var evt Event
	if err := json.Unmarshal(trimmed, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return evt, nil
}

// Encode renders the Event as a bare payload object.
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return data, nil
}

// IsControl reports whether the operation type is a control signal rather
// than a data operation.
func (o OperationType) IsControl() bool {
	return o == OperationInitialize || o == OperationUserMessage
}

// Known reports whether o is one of the operation types producers send.
func (o OperationType) Known() bool {
	switch o {
	case OperationInsert, OperationDelete, OperationUpdate, OperationInitialize, OperationUserMessage:
		return true
	}
	return false
}
