// Package csvparser implements ports.FileParser over a local CSV file, the
// reference FileParser adapter for CSV job submissions.
package csvparser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
)

// Parser resolves a sourceRef to a path on a local filesystem (or mounted
// volume) and streams its rows. It never buffers the whole file.
type Parser struct {
	baseDir string
}

func New(baseDir string) *Parser {
	return &Parser{baseDir: baseDir}
}

func (p *Parser) StreamRows(ctx context.Context, sourceRef string) (ports.RowIterator, error) {
	path := sourceRef
	if p.baseDir != "" && !strings.HasPrefix(sourceRef, "/") {
		path = p.baseDir + "/" + sourceRef
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", sourceRef, err)
	}

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read header from %s: %w", sourceRef, err)
	}

	return &rowIterator{file: f, reader: r, header: header}, nil
}

// rowIterator is forward-only and not restartable from the middle, as
// required by spec §4.9.
type rowIterator struct {
	file   *os.File
	reader *csv.Reader
	header []string
}

func (it *rowIterator) Next(ctx context.Context) (model.RawInput, error) {
	record, err := it.reader.Read()
	if err != nil {
		return model.RawInput{}, err // io.EOF propagates as-is
	}
	return rowFromRecord(it.header, record), nil
}

func (it *rowIterator) Close() error { return it.file.Close() }

func rowFromRecord(header, record []string) model.RawInput {
	row := model.RawInput{Extras: make(map[string]interface{})}
	for i, col := range header {
		if i >= len(record) {
			break
		}
		val := record[i]
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "title":
			row.Title = val
		case "brand":
			row.Brand = val
		case "model":
			row.Model = val
		case "category":
			row.Category = val
		case "description":
			row.Description = val
		default:
			if val != "" {
				row.Extras[col] = val
			}
		}
	}
	return row
}

var _ io.Closer = (*rowIterator)(nil)
