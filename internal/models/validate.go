package models

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

//go:embed snapshot.schema.json
var snapshotSchema []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(snapshotSchema))
})

// Validate checks what a snapshot must hold before it is persisted.
// Numbers must be finite (they could not be encoded otherwise) and entity names
// must be present and unique within the snapshot.
func (s Snapshot) Validate() error {
	var errs []error
	finite := func(field string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s is not a finite number", field))
		}
	}

	finite("cpu_percent", s.CPUPercent)
	finite("ram_percent", s.RAMPercent)
	for i, v := range s.LoadAverage {
		finite(fmt.Sprintf("load_average[%d]", i), v)
	}
	for i, d := range s.Disks {
		finite(fmt.Sprintf("disks[%d].used_percent", i), d.UsedPercent)
	}

	seen := make(map[string]struct{}, len(s.Entities))
	for i, e := range s.Entities {
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Errorf("containers[%d] has no name", i))
			continue
		}
		if _, dup := seen[e.Name]; dup {
			errs = append(errs, fmt.Errorf("containers[%d]: duplicate name %q", i, e.Name))
		}
		seen[e.Name] = struct{}{}
		finite(fmt.Sprintf("containers[%d].cpu_percent", i), e.CPUPercent)
		finite(fmt.Sprintf("containers[%d].mem_mb", i), e.MemMB)
		finite(fmt.Sprintf("containers[%d].mem_percent", i), e.MemPercent)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, errors.Join(errs...))
	}

	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrInvalidSnapshot, err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile snapshot schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidSnapshot, strings.Join(msgs, "; "))
	}
	return nil
}
