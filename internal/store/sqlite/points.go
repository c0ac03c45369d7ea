package sqlite

import "context"

// RecordPoints upserts the latest observed total for a user id. Overwrite,
// not append: every poll replaces the previous value.
func (s *Store) RecordPoints(ctx context.Context, userID, email string, points float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO point_stats (user_id, email, points) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			points = excluded.points
	`, userID, email, points)
	return err
}

// TotalPoints sums, across distinct emails, each email's maximum recorded
// value. Taking the max guards against a transient low read when several
// user ids map to one email.
func (s *Store) TotalPoints(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(max_points), 0) FROM (
			SELECT MAX(points) AS max_points FROM point_stats GROUP BY email
		)
	`).Scan(&total)
	return total, err
}
