package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/memgraph/internal/storage"
	"github.com/scrypster/memgraph/pkg/types"
)

// AddCorrelation appends one record to the legacy correlation log.
func (s *GraphStore) AddCorrelation(ctx context.Context, c *types.ServiceCorrelation) error {
	if c == nil || c.CorrelationID == "" {
		return fmt.Errorf("%w: correlation ID is required", storage.ErrInvalidInput)
	}

	requestJSON, err := c.RequestData.Canonical()
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	responseJSON, err := c.ResponseData.Canonical()
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	var tagsJSON []byte
	if len(c.Tags) > 0 {
		tagsJSON, err = json.Marshal(c.Tags)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal tags: %v", storage.ErrInvalidInput, err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO service_correlations (
			correlation_id, correlation_type, service_type, handler_name, action_type,
			request_data, response_data, status, tags, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CorrelationID, c.CorrelationType, c.ServiceType, c.HandlerName, c.ActionType,
		requestJSON, responseJSON, c.Status, nullableString(string(tagsJSON)), formatTime(c.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to store correlation %s: %v", storage.ErrPersistence, c.CorrelationID, err)
	}
	return nil
}

// ListCorrelations returns the newest records of correlationType, or of all
// types when correlationType is empty.
func (s *GraphStore) ListCorrelations(ctx context.Context, correlationType string, limit int) ([]*types.ServiceCorrelation, error) {
	if limit < 1 {
		limit = storage.DefaultListLimit
	}

	query := `
		SELECT correlation_id, correlation_type, service_type, handler_name, action_type,
		       request_data, response_data, status, tags, timestamp
		FROM service_correlations
	`
	var args []interface{}
	if correlationType != "" {
		query += " WHERE correlation_type = ?"
		args = append(args, correlationType)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list correlations: %v", storage.ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.ServiceCorrelation
	for rows.Next() {
		var c types.ServiceCorrelation
		var requestJSON, responseJSON, tagsJSON sql.NullString
		var ts string

		if err := rows.Scan(&c.CorrelationID, &c.CorrelationType, &c.ServiceType, &c.HandlerName, &c.ActionType,
			&requestJSON, &responseJSON, &c.Status, &tagsJSON, &ts); err != nil {
			log.Warn().Err(err).Msg("sqlite: skipping malformed correlation row")
			continue
		}

		if c.RequestData, err = types.ParseAttributes(requestJSON.String); err != nil {
			log.Warn().Err(err).Str("correlation_id", c.CorrelationID).Msg("sqlite: bad request_data")
		}
		if c.ResponseData, err = types.ParseAttributes(responseJSON.String); err != nil {
			log.Warn().Err(err).Str("correlation_id", c.CorrelationID).Msg("sqlite: bad response_data")
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &c.Tags); err != nil {
				log.Warn().Err(err).Str("correlation_id", c.CorrelationID).Msg("sqlite: bad tags")
			}
		}
		if t, err := types.ParseTimestamp(ts); err == nil {
			c.Timestamp = t
		}

		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating correlations: %v", storage.ErrPersistence, err)
	}

	return out, nil
}
