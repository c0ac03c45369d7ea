package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"grass_auto/internal/model"
)

// UpsertLoginData creates or overwrites the cached credential row for an
// (email, deviceID) pair. Called whenever the network issues a new token.
func (s *Store) UpsertLoginData(ctx context.Context, email, userID, deviceID, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_data (email, user_id, device_id, access_token)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email, device_id) DO UPDATE SET
			user_id = excluded.user_id,
			access_token = excluded.access_token
	`, email, userID, deviceID, token)
	return err
}

func (s *Store) GetLoginData(ctx context.Context, email, deviceID string) (model.LoginData, bool, error) {
	var ld model.LoginData
	err := s.db.QueryRowContext(ctx, `
		SELECT email, user_id, device_id, access_token FROM login_data
		WHERE email = ? AND device_id = ?
	`, email, deviceID).Scan(&ld.Email, &ld.UserID, &ld.DeviceID, &ld.AccessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LoginData{}, false, nil
	}
	if err != nil {
		return model.LoginData{}, false, err
	}
	return ld, true, nil
}
