package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader tags each request so its entry in api.log can be matched up
// with backend logs.
const RequestIDHeader = "X-Request-ID"

// Global slice to keep track of all logging transports created
var (
	activeLoggingTransports []*LoggingTransport
	transportsMu            sync.Mutex
)

// LoggingTransport wraps an http.RoundTripper to log request and response details.
// The Authorization header and login bodies are never written.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	writer    *bufio.Writer
	mu        sync.Mutex
}

// NewLoggingTransport creates a new LoggingTransport.
// It opens the specified log file for appending.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	safeLogFilePath := filepath.Clean(logFilePath)
	// #nosec G304
	f, err := os.OpenFile(safeLogFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", safeLogFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	lt := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}

	transportsMu.Lock()
	activeLoggingTransports = append(activeLoggingTransports, lt)
	transportsMu.Unlock()
	log.Debugf("Registered new LoggingTransport for file: %s. Total active: %d", logFilePath, len(activeLoggingTransports))

	return lt, nil
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(RequestIDHeader, requestID)
	}

	t.mu.Lock()
	t.writeLog(fmt.Sprintf("--- Request %s (%s) ---\n%s", requestID, startTime.Format(time.RFC3339), dumpRequestRedacted(req)))
	t.mu.Unlock()

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error %s (%s, Duration: %v) ---\n%s\n", requestID, time.Now().Format(time.RFC3339), duration, err.Error()))
	} else {
		contentType := resp.Header.Get("Content-Type")
		if strings.HasPrefix(contentType, "application/json") {
			bodyBytes, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				log.WithError(readErr).Error("[LogTransport] Failed to read response body for logging")
				respDump, _ := httputil.DumpResponse(resp, false)
				t.writeLog(fmt.Sprintf("--- Response Headers %s (Duration: %v) ---\n%s\n(Body read failed)\n", requestID, duration, string(respDump)))
			} else {
				if closeErr := resp.Body.Close(); closeErr != nil {
					log.WithError(closeErr).Warn("[LogTransport] Failed to close original response body before replacing it")
				}
				resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

				respDumpHeader, _ := httputil.DumpResponse(resp, false)
				t.writeLog(fmt.Sprintf("--- Response %s (Duration: %v) ---\n%s\n%s\n", requestID, duration, string(respDumpHeader), redactToken(req.URL.Path, bodyBytes)))
			}
		} else {
			respDump, _ := httputil.DumpResponse(resp, false)
			t.writeLog(fmt.Sprintf("--- Response %s (Duration: %v, Type: %s) ---\n%s\n(Body not logged)\n", requestID, duration, contentType, string(respDump)))
		}
	}

	if errFlush := t.writer.Flush(); errFlush != nil {
		log.WithError(errFlush).Error("[LogTransport] Failed to flush log writer")
	}
	return resp, err
}

// dumpRequestRedacted renders the request line and headers with the credential
// masked. Bodies are only logged for non-login requests.
func dumpRequestRedacted(req *http.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Method, req.URL.String())
	for name, values := range req.Header {
		value := strings.Join(values, ", ")
		if strings.EqualFold(name, "Authorization") {
			value = "[redacted]"
		}
		fmt.Fprintf(&b, "%s: %s\n", name, value)
	}
	if req.GetBody == nil || req.ContentLength == 0 {
		return b.String()
	}
	if strings.HasSuffix(req.URL.Path, "/login") {
		b.WriteString("\n(body redacted)\n")
		return b.String()
	}
	body, err := req.GetBody()
	if err != nil {
		return b.String()
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	b.WriteString("\n")
	b.Write(data)
	b.WriteString("\n")
	return b.String()
}

// redactToken hides the token returned by the login endpoint.
func redactToken(path string, body []byte) string {
	if strings.HasSuffix(path, "/login") && bytes.Contains(body, []byte(`"token"`)) {
		return "(login response redacted)"
	}
	return string(body)
}

// writeLog writes a string to the buffered writer.
func (t *LoggingTransport) writeLog(logString string) {
	_, err := t.writer.WriteString(logString + "\n\n")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\nLog message: %s\n", err, logString)
	}
}

// Close closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// CloseAllLoggingTransports iterates over all created transports and closes them.
func CloseAllLoggingTransports() {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	for _, t := range activeLoggingTransports {
		if err := t.Close(); err != nil {
			// Log to stderr as the primary logger might also be closing
			fmt.Fprintf(os.Stderr, "Error closing logging transport for %s: %v\n", t.logFile.Name(), err)
		}
	}
	activeLoggingTransports = []*LoggingTransport{}
}
