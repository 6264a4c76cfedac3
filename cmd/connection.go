// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// Connection is the byte stream to the thermostat, either a serial port or a
// websocket serial gateway
type Connection interface {
	io.Reader
	io.Writer
	io.Closer

	// Flush discards any input received but not yet read
	Flush() error
}

// ErrConnectionClosed is returned when reading from a closed gateway connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// ErrNoConnection is returned when neither a port nor a URL is configured
var ErrNoConnection = errors.New("either --com-port or --url must be specified")

// defaultPort is the serial device used when --com-port is not given
func defaultPort() string {
	if runtime.GOOS == "windows" {
		return "COM1"
	}
	return "/dev/ttyS0"
}

// SerialConnection is a direct RS-232 link to the thermostat
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Flush() error {
	return s.port.ResetInputBuffer()
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// WebSocketConnection carries the thermostat byte stream over a websocket
// serial gateway. Each frame holds a run of serial bytes.
type WebSocketConnection struct {
	conn    *websocket.Conn
	pending []byte
	closed  bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		if w.closed {
			return 0, ErrConnectionClosed
		}
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		// Gateways forward serial bytes as either frame type
		if messageType == websocket.BinaryMessage || messageType == websocket.TextMessage {
			w.pending = data
		}
	}

	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

// Write sends one command line per frame
func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush drops the unread part of the current frame. Frames still in flight
// on the socket are read normally.
func (w *WebSocketConnection) Flush() error {
	w.pending = nil
	return nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// rc65Mode is the RC65 line setting: 8 data bits, no parity, one stop bit
func rc65Mode(baudRate int) *serial.Mode {
	if baudRate <= 0 {
		baudRate = rcs.DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenSerialConnection opens the thermostat's serial port
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, rc65Mode(baudRate))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialConnection{port: port}, nil
}

// gatewayHeaders returns the handshake headers for a gateway, with HTTP Basic
// auth when credentials are given
func gatewayHeaders(username, password string) http.Header {
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}
	return headers
}

// OpenWebSocketConnection dials a websocket serial gateway
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, gatewayHeaders(username, password))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gateway connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gateway connection failed: %w", err)
	}
	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves the gateway password from RCSBRIDGE_PASSWORD or
// prompts for it
func GetPassword() (string, error) {
	if pw := os.Getenv("RCSBRIDGE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// linkOptions selects the link to open
type linkOptions struct {
	port        string
	baud        int
	url         string
	username    string
	password    string
	noSSLVerify bool
}

// describe returns a human readable name for the link
func (o linkOptions) describe() string {
	if o.url != "" {
		return fmt.Sprintf("WebSocket: %s", o.url)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", o.port, o.baud)
}

// OpenConnection opens either a serial or WebSocket link. The WebSocket
// URL takes precedence when both are set.
func OpenConnection(o linkOptions) (Connection, error) {
	if o.url != "" {
		return OpenWebSocketConnection(o.url, o.username, o.password, o.noSSLVerify)
	}
	if o.port != "" {
		return OpenSerialConnection(o.port, o.baud)
	}
	return nil, ErrNoConnection
}
