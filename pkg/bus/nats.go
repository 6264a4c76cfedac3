// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject root all bus traffic lives under
const DefaultSubjectPrefix = "xpl"

// ErrNoIPv4 is returned when the broadcast interface has no IPv4 address
var ErrNoIPv4 = errors.New("interface has no IPv4 address")

// NATSConfig configures a NATS transport
type NATSConfig struct {
	URL           string
	Name          string // client connection name
	SubjectPrefix string
	Interface     string // bind outgoing connections to this interface
	Codec         Codec

	// OnError receives asynchronous connection and decode errors
	OnError func(error)
	// OnReconnect runs after the connection to the server is restored
	OnReconnect func(url string)
}

// NATSTransport carries bus messages over NATS subjects
// <prefix>.cmnd, <prefix>.stat and <prefix>.trig.
type NATSTransport struct {
	conn   *nats.Conn
	prefix string
	codec  Codec
	onErr  func(error)
	sub    *nats.Subscription
}

// DialNATS connects to the NATS server described by cfg
func DialNATS(cfg NATSConfig) (*NATSTransport, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	onErr := cfg.OnError
	if onErr == nil {
		onErr = func(error) {}
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			onErr(err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				onErr(fmt.Errorf("disconnected from bus: %w", err))
			}
		}),
	}
	if cfg.OnReconnect != nil {
		opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
			cfg.OnReconnect(nc.ConnectedUrl())
		}))
	}
	if cfg.Interface != "" {
		dialer, err := interfaceDialer(cfg.Interface)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nats.SetCustomDialer(dialer))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus at %s: %w", cfg.URL, err)
	}

	return &NATSTransport{
		conn:   nc,
		prefix: cfg.SubjectPrefix,
		codec:  cfg.Codec,
		onErr:  onErr,
	}, nil
}

// Publish encodes msg and sends it on the subject for its kind
func (t *NATSTransport) Publish(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := t.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Schema, err)
	}
	if err := t.conn.Publish(Subject(t.prefix, msg.Kind), data); err != nil {
		return fmt.Errorf("failed to publish %s message: %w", msg.Schema, err)
	}
	return nil
}

// Subscribe delivers every decodable message under the prefix to handler.
// handler runs on the NATS delivery goroutine.
func (t *NATSTransport) Subscribe(handler func(*Message)) error {
	sub, err := t.conn.Subscribe(t.prefix+".*", func(m *nats.Msg) {
		msg, err := t.codec.Unmarshal(m.Data)
		if err != nil {
			t.onErr(fmt.Errorf("dropping message on %s: %w", m.Subject, err))
			return
		}
		if kind := KindFromSubject(t.prefix, m.Subject); kind != KindOther {
			msg.Kind = kind
		}
		handler(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s.*: %w", t.prefix, err)
	}
	t.sub = sub
	return nil
}

// Flush waits until the server has processed every published message
func (t *NATSTransport) Flush(ctx context.Context) error {
	return t.conn.FlushWithContext(ctx)
}

// Close drains the subscription and closes the connection
func (t *NATSTransport) Close() error {
	if t.conn.IsClosed() {
		return nil
	}
	return t.conn.Drain()
}

// Subject returns the NATS subject carrying messages of kind
func Subject(prefix string, kind Kind) string {
	switch kind {
	case KindCommand:
		return prefix + ".cmnd"
	case KindStatus:
		return prefix + ".stat"
	case KindTrigger:
		return prefix + ".trig"
	default:
		return prefix + ".other"
	}
}

// KindFromSubject is the inverse of Subject
func KindFromSubject(prefix, subject string) Kind {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return KindOther
	}
	return ParseKind(rest)
}

func interfaceDialer(name string) (*net.Dialer, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("broadcast interface %s: %w", name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("broadcast interface %s: %w", name, err)
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			return &net.Dialer{
				Timeout:   5 * time.Second,
				LocalAddr: &net.TCPAddr{IP: ipnet.IP},
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoIPv4, name)
}
