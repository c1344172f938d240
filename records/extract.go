package records

import (
	"errors"
	"fmt"
	"reflect"

	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount/counters"
)

// DefaultLocationField is the pickup location column of the trip records.
const DefaultLocationField = "PULocationID"

// LocationID identifies a taxi zone. Valid identifiers are positive.
type LocationID int64

// Reasons a record is skipped by the Extractor.
var (
	ErrNullRecord     = errors.New("null record")
	ErrMissingField   = errors.New("field missing from record schema")
	ErrNotIntegerType = errors.New("field is not an integer type")
	ErrNullOrEmpty    = errors.New("field has no value")
	ErrNonPositive    = errors.New("location id is not positive")
	ErrRecordError    = errors.New("record could not be inspected")
)

var skipCounters = map[error]string{
	ErrNullRecord:     counters.NullRecord,
	ErrMissingField:   counters.MissingField,
	ErrNotIntegerType: counters.NotIntegerType,
	ErrNullOrEmpty:    counters.NullOrEmpty,
	ErrNonPositive:    counters.NonPositive,
	ErrRecordError:    counters.RecordError,
}

// IsSkip reports whether err is one of the Extractor's skip reasons.
func IsSkip(err error) bool {
	for reason := range skipCounters {
		if errors.Is(err, reason) {
			return true
		}
	}
	return false
}

// Extractor pulls a LocationID out of records. Every failed extraction is
// counted under a reason-specific counter and never aborts the caller.
type Extractor struct {
	field    string
	counters counters.Counters
}

// NewExtractor returns an Extractor reading field. An empty field name
// selects DefaultLocationField.
func NewExtractor(field string, c counters.Counters) *Extractor {
	if field == "" {
		field = DefaultLocationField
	}
	if c == nil {
		c = counters.Noop
	}
	return &Extractor{field: field, counters: c}
}

// Field returns the name of the field the Extractor reads.
func (e *Extractor) Field() string {
	return e.field
}

// Extract returns the record's location identifier, or a skip error
// wrapping one of the Err* reasons.
func (e *Extractor) Extract(rec Record) (id LocationID, err error) {
	if isNil(rec) {
		log.Debug("skipping null record")
		return 0, e.skip(ErrNullRecord, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			id, err = 0, e.skip(fmt.Errorf("%w: %v", ErrRecordError, r), rec)
		}
	}()

	schema := rec.Schema()
	if schema == nil {
		return 0, e.skip(fmt.Errorf("%w: record has no schema", ErrRecordError), rec)
	}
	fieldType, ok := schema.Type(e.field)
	if !ok {
		return 0, e.skip(ErrMissingField, rec)
	}
	if !fieldType.IsInteger() {
		return 0, e.skip(fmt.Errorf("%w: %s is %s", ErrNotIntegerType, e.field, fieldType), rec)
	}
	if rec.Repetition(e.field) == 0 {
		return 0, e.skip(ErrNullOrEmpty, rec)
	}

	var value int64
	if fieldType == Int64 {
		value, err = rec.Int64(e.field, 0)
	} else {
		var v32 int32
		v32, err = rec.Int32(e.field, 0)
		value = int64(v32)
	}
	if err != nil {
		return 0, e.skip(fmt.Errorf("%w: %v", ErrRecordError, err), rec)
	}

	if value <= 0 {
		return 0, e.skip(ErrNonPositive, nil)
	}
	return LocationID(value), nil
}

// skip counts err under its reason and logs the offending record, if any.
func (e *Extractor) skip(err error, rec Record) error {
	for reason, name := range skipCounters {
		if errors.Is(err, reason) {
			e.counters.Inc(name, 1)
			break
		}
	}
	if rec != nil {
		entry := log.WithField("record", recordString(rec))
		if errors.Is(err, ErrRecordError) {
			entry.Warnf("skipping record: %s", err)
		} else {
			entry.Debugf("skipping record: %s", err)
		}
	}
	return err
}

func recordString(rec Record) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<unprintable record: %v>", r)
		}
	}()
	return rec.String()
}

func isNil(rec Record) bool {
	if rec == nil {
		return true
	}
	v := reflect.ValueOf(rec)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
