package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gocloud.dev/blob"
)

// ErrNoFireIDColumn is returned when a fire id list has no fireid column.
var ErrNoFireIDColumn = errors.New("export: fire id list has no fireid column")

// ReadFireIDs reads the "fireid" column of a CSV stored under key. Values
// such as "72552.0" are truncated to integers and blank cells are skipped.
func ReadFireIDs(ctx context.Context, bucket *blob.Bucket, key string) ([]int, error) {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	return parseFireIDs(r)
}

func parseFireIDs(r io.Reader) ([]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoFireIDColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), "fireid") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoFireIDColumn
	}

	ids := []int{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if col >= len(record) || strings.TrimSpace(record[col]) == "" {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid fire id %q", line, record[col])
		}
		ids = append(ids, int(v))
	}
}
