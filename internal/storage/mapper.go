package storage

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ScanRows maps *sql.Rows into []T using `db:"column"` struct tags, falling
// back to the lowercased field name. Adapted from the teacher's
// SelectBuilder.scanRows/populateStruct/setFieldValue (internal/storage/orm.go)
// as standalone functions usable by any repository, not just a query
// builder — repositories here issue raw SQL directly since the spec's
// dynamic per-monitor-type columns don't fit a fluent builder cleanly.
func ScanRows[T any](rows *sql.Rows) ([]T, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var results []T
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var item T
		if err := populateStruct(&item, columns, values); err != nil {
			return nil, fmt.Errorf("failed to populate struct: %w", err)
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func populateStruct(item any, columns []string, values []any) error {
	v := reflect.ValueOf(item).Elem()
	t := v.Type()

	fieldMap := make(map[string]int)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		dbTag := field.Tag.Get("db")
		if dbTag != "" {
			fieldMap[strings.Split(dbTag, ",")[0]] = i
		} else {
			fieldMap[strings.ToLower(field.Name)] = i
		}
	}

	for i, column := range columns {
		fieldIndex, ok := fieldMap[column]
		if !ok {
			continue
		}
		field := v.Field(fieldIndex)
		if !field.CanSet() {
			continue
		}
		if err := setFieldValue(field, values[i]); err != nil {
			return fmt.Errorf("failed to set field %s: %w", column, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value any) error {
	if field.Kind() == reflect.Ptr {
		if value == nil {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if value == nil {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		switch v := value.(type) {
		case string:
			field.SetString(v)
		case []byte:
			field.SetString(string(v))
		default:
			return fmt.Errorf("cannot assign %T to string field", value)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v := value.(type) {
		case int:
			field.SetInt(int64(v))
		case int64:
			field.SetInt(v)
		case float64:
			field.SetInt(int64(v))
		default:
			return fmt.Errorf("cannot assign %T to int field", value)
		}
	case reflect.Float32, reflect.Float64:
		switch v := value.(type) {
		case float64:
			field.SetFloat(v)
		case float32:
			field.SetFloat(float64(v))
		case int64:
			field.SetFloat(float64(v))
		default:
			return fmt.Errorf("cannot assign %T to float field", value)
		}
	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			field.SetBool(v)
		case int64:
			field.SetBool(v != 0)
		default:
			return fmt.Errorf("cannot assign %T to bool field", value)
		}
	case reflect.Struct:
		if field.Type() == reflect.TypeOf(time.Time{}) {
			switch v := value.(type) {
			case time.Time:
				field.Set(reflect.ValueOf(v))
			case string:
				parsed, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return fmt.Errorf("invalid time format: %w", err)
				}
				field.Set(reflect.ValueOf(parsed))
			default:
				return fmt.Errorf("cannot assign %T to time.Time field", value)
			}
			return nil
		}
		return fmt.Errorf("unsupported struct type: %s", field.Type())
	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}
	return nil
}
