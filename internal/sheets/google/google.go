// Package google mirrors the trading journal into a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
	htransport "google.golang.org/api/transport/http"

	"pnlcal/internal/core"
	ports "pnlcal/internal/sheets"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// Writes read the sheet to locate a row first; serialise them so two
	// messages for the same key cannot both append.
	mu sync.Mutex
}

var (
	_ ports.EntryMirror  = (*Client)(nil)
	_ ports.MirrorReader = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Journal"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	file := strings.TrimSpace(cfg.CredentialsFile)
	if len(credentialsJSON) == 0 && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case len(credentialsJSON) > 0:
		slog.InfoContext(ctx, "Using inline service account credentials")
	case file != "":
		var err error
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", file)
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	authOpts := []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}
	pooled := newHTTPClientWithPooling()
	rt, err := htransport.NewTransport(ctx, pooled.Transport, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("authorised transport: %w", err)
	}
	pooled.Transport = rt

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(pooled))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// EnsureHeader writes the header row when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, headerRange(c.sheetName)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	vr := &gsheet.ValueRange{Values: [][]interface{}{header}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, headerRange(c.sheetName), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	slog.InfoContext(ctx, "Wrote journal header", "sheet", c.sheetName)
	return nil
}

func (c *Client) readRows(ctx context.Context) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, dataRange(c.sheetName)).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read journal rows: %w", err)
	}
	return resp.Values, nil
}

// UpsertEntry implements sheets.EntryMirror.
func (c *Client) UpsertEntry(ctx context.Context, e core.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readRows(ctx)
	if err != nil {
		return err
	}
	vr := &gsheet.ValueRange{Values: [][]interface{}{entryRow(e)}}

	if idx := findRow(rows, e.OwnerID, e.Date); idx >= 0 {
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rowRange(c.sheetName, idx), vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update row: %w", err)
		}
		slog.DebugContext(ctx, "Updated journal row", "date", e.Date.String(), "row", idx+2)
		return nil
	}

	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, dataRange(c.sheetName), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	slog.DebugContext(ctx, "Appended journal row", "date", e.Date.String())
	return nil
}

// ClearEntry implements sheets.EntryMirror. The row is blanked rather than
// removed so concurrent readers never see indices shift.
func (c *Client) ClearEntry(ctx context.Context, ownerID string, date core.Date) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readRows(ctx)
	if err != nil {
		return err
	}
	idx := findRow(rows, ownerID, date)
	if idx < 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rowRange(c.sheetName, idx), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row: %w", err)
	}
	slog.DebugContext(ctx, "Cleared journal row", "date", date.String(), "row", idx+2)
	return nil
}

// ListMirrored implements sheets.MirrorReader.
func (c *Client) ListMirrored(ctx context.Context, ownerID string, start, end core.Date) ([]core.Entry, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return nil, err
	}
	return parseRows(rows, ownerID, start, end), nil
}
