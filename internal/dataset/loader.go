package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/airquality"
)

var (
	ErrNoSource = errors.New("dataset source not configured")
)

// NameRow is one entry of the ward name lookup table.
type NameRow struct {
	WardNo   airquality.FlexString `json:"ward_no"`
	WardName airquality.FlexString `json:"ward_name"`
}

// Loader reads the bundled ward dataset and the name lookup table. Each
// source is either a file path or an http(s) URL.
type Loader struct {
	wardsSource string
	namesSource string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewLoader(wardsSource, namesSource string, client *http.Client, logger *zap.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		wardsSource: wardsSource,
		namesSource: namesSource,
		httpClient:  client,
		logger:      logger,
	}
}

// LoadWards reads and normalizes the ward dataset. Rows that fail
// normalization are logged and skipped.
func (l *Loader) LoadWards(ctx context.Context) ([]airquality.WardAQIData, error) {
	var raws []airquality.RawWard
	if err := l.decode(ctx, l.wardsSource, &raws); err != nil {
		return nil, fmt.Errorf("load wards: %w", err)
	}

	wards, problems := airquality.NormalizeLocalWards(raws)
	for _, p := range problems {
		l.logger.Warn("skipping dataset row", zap.String("source", l.wardsSource), zap.Error(p))
	}
	l.logger.Debug("ward dataset loaded",
		zap.String("source", l.wardsSource),
		zap.Int("rows", len(raws)),
		zap.Int("wards", len(wards)),
	)
	return wards, nil
}

// LoadWardNames returns ward number → ward name. Rows without a number or a
// name are skipped.
func (l *Loader) LoadWardNames(ctx context.Context) (map[string]string, error) {
	var rows []NameRow
	if err := l.decode(ctx, l.namesSource, &rows); err != nil {
		return nil, fmt.Errorf("load ward names: %w", err)
	}

	names := make(map[string]string, len(rows))
	for _, row := range rows {
		no := strings.TrimSpace(string(row.WardNo))
		name := strings.TrimSpace(string(row.WardName))
		if no == "" || name == "" {
			continue
		}
		if _, dup := names[no]; dup {
			continue
		}
		names[no] = name
	}
	return names, nil
}

func (l *Loader) decode(ctx context.Context, source string, v any) error {
	body, err := l.open(ctx, source)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", source, err)
	}
	return nil
}

func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrNoSource
	}

	if !isURL(source) {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", source, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", source, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", source, resp.StatusCode)
	}
	return resp.Body, nil
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
