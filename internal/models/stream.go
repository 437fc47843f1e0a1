package models

import "fmt"

type Network string

const (
	NetworkMain Network = "main"
	NetworkTest Network = "test"
)

// StreamKind — тип потока, один к одному соответствует endpoint'у.
type StreamKind string

const (
	StreamPublicSpot    StreamKind = "public-spot"
	StreamPublicLinear  StreamKind = "public-linear"
	StreamPublicInverse StreamKind = "public-inverse"
	StreamPublicOption  StreamKind = "public-option"
	StreamPrivate       StreamKind = "private-account"
	StreamTrade         StreamKind = "private-trade"
)

func (k StreamKind) Private() bool {
	return k == StreamPrivate || k == StreamTrade
}

func (k StreamKind) Validate() error {
	switch k {
	case StreamPublicSpot, StreamPublicLinear, StreamPublicInverse, StreamPublicOption, StreamPrivate, StreamTrade:
		return nil
	}
	return fmt.Errorf("unknown stream kind %q", k)
}

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
	OpPong        = "pong"
	OpAuth        = "auth"
)

// OutFrame — исходящий кадр {op, args}.
type OutFrame struct {
	ReqID string `json:"req_id,omitempty"`
	Op    string `json:"op"`
	Args  []any  `json:"args,omitempty"`
}

// InFrame — входящий кадр. Для ack'ов заполнены Op/Success, для данных — Topic, сам кадр целиком в Raw.
type InFrame struct {
	Op      string `json:"op,omitempty"`
	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	ConnID  string `json:"conn_id,omitempty"`
	Topic   string `json:"topic,omitempty"`
	Type    string `json:"type,omitempty"`
	TS      int64  `json:"ts,omitempty"`
	Raw     []byte `json:"-"`
}

func (f InFrame) IsAck() bool { return f.Op != "" && f.Success != nil }

func (f InFrame) OK() bool { return f.Success != nil && *f.Success }
