// Package postgres implements domain.Store on Postgres with a transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gatherings/internal/domain"
	"example.com/gatherings/internal/observability"
	platformevents "example.com/gatherings/pkg/platform/events"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

var _ domain.Store = (*Repository)(nil)

const activityColumns = `a.activity_id, a.title, a.starts_at, a.description, a.category, a.city, a.venue, a.is_cancelled, a.created_at`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.Title, &a.Date, &a.Description, &a.Category, &a.City, &a.Venue, &a.IsCancelled, &a.CreatedAt)
	return a, err
}

// CreateActivity inserts the activity and its host attendance with an
// activity.created outbox event.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity, host domain.Attendance) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `INSERT INTO activities (activity_id, title, starts_at, description, category, city, venue, is_cancelled, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		activity.ID, activity.Title, activity.Date, activity.Description, activity.Category,
		activity.City, activity.Venue, activity.IsCancelled, activity.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO attendances (activity_id, user_id, role, joined_at) VALUES ($1,$2,$3,$4)`,
		activity.ID, host.UserID, string(domain.RoleHost), host.JoinedAt)
	if err != nil {
		return mapWriteError(err)
	}

	if err = insertOutbox(ctx, tx, "activity", activity.ID, platformevents.TypeActivityCreated, platformevents.ActivityCreated{
		ActivityID: activity.ID,
		HostID:     host.UserID,
		Title:      activity.Title,
		Category:   activity.Category,
		City:       activity.City,
		Date:       activity.Date,
		CreatedAt:  activity.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetActivity loads the activity with attendees and their profiles.
func (r *Repository) GetActivity(ctx context.Context, activityID string) (*domain.ActivityRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	activity, err := scanActivity(tx.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities a WHERE a.activity_id=$1`, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	attendees, err := loadAttendees(ctx, tx, []string{activityID})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.ActivityRecord{Activity: activity, Attendees: attendees[activityID]}, nil
}

func loadAttendees(ctx context.Context, tx pgx.Tx, activityIDs []string) (map[string][]domain.Attendee, error) {
	out := make(map[string][]domain.Attendee, len(activityIDs))
	if len(activityIDs) == 0 {
		return out, nil
	}
	rows, err := tx.Query(ctx, `SELECT t.activity_id, t.user_id, t.role, t.joined_at, u.username, u.display_name, u.bio, u.image
        FROM attendances t JOIN users u ON u.user_id = t.user_id
        WHERE t.activity_id = ANY($1)
        ORDER BY t.joined_at, t.user_id`, activityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Attendee
		var role string
		if err := rows.Scan(&a.ActivityID, &a.UserID, &role, &a.JoinedAt, &a.User.Username, &a.User.DisplayName, &a.User.Bio, &a.User.Image); err != nil {
			return nil, err
		}
		a.Role = domain.AttendeeRole(role)
		a.User.ID = a.UserID
		out[a.ActivityID] = append(out[a.ActivityID], a)
	}
	return out, rows.Err()
}

// GetUser returns the profile or nil when absent.
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return r.findUser(ctx, `user_id = $1`, userID)
}

// FindUserByUsername matches usernames case-insensitively.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findUser(ctx, `lower(username) = lower($1)`, username)
}

func (r *Repository) findUser(ctx context.Context, where string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `SELECT user_id, username, display_name, bio, image FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.Bio, &u.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates or replaces a profile.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (user_id, username, display_name, bio, image)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username, display_name = EXCLUDED.display_name,
            bio = EXCLUDED.bio, image = EXCLUDED.image`,
		user.ID, user.Username, user.DisplayName, user.Bio, user.Image)
	return mapWriteError(err)
}

// ApplyAttendance locks the activity row, computes the transition from the
// locked snapshot and writes it with an attendance.changed outbox event.
func (r *Repository) ApplyAttendance(ctx context.Context, activityID, userID string, decide domain.AttendanceDecider) (transition domain.AttendanceTransition, affected int64, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return transition, 0, err
	}
	defer func() {
		if err != nil || affected == 0 {
			tx.Rollback(ctx)
		}
	}()

	activity, err := scanActivity(tx.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities a WHERE a.activity_id=$1 FOR UPDATE`, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transition, 0, domain.ErrActivityNotFound
		}
		return transition, 0, err
	}

	var actor domain.User
	err = tx.QueryRow(ctx, `SELECT user_id, username, display_name, bio, image FROM users WHERE user_id=$1`, userID).
		Scan(&actor.ID, &actor.Username, &actor.DisplayName, &actor.Bio, &actor.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transition, 0, domain.ErrUserNotFound
		}
		return transition, 0, err
	}

	attendees, err := loadAttendees(ctx, tx, []string{activityID})
	if err != nil {
		return transition, 0, err
	}
	rows := make([]domain.Attendance, 0, len(attendees[activityID]))
	for _, a := range attendees[activityID] {
		rows = append(rows, a.Attendance)
	}

	transition = decide(domain.AttendanceSnapshot{Activity: activity, Attendees: rows, Actor: actor})

	var tag pgconn.CommandTag
	switch transition.Kind {
	case domain.TransitionCancelToggle:
		tag, err = tx.Exec(ctx, `UPDATE activities SET is_cancelled=$2 WHERE activity_id=$1`, activityID, transition.Cancelled)
		activity.IsCancelled = transition.Cancelled
	case domain.TransitionLeave:
		tag, err = tx.Exec(ctx, `DELETE FROM attendances WHERE activity_id=$1 AND user_id=$2 AND role=$3`,
			activityID, transition.Row.UserID, string(domain.RoleAttendee))
	case domain.TransitionJoin:
		tag, err = tx.Exec(ctx, `INSERT INTO attendances (activity_id, user_id, role, joined_at) VALUES ($1,$2,$3,$4)`,
			activityID, transition.Row.UserID, string(domain.RoleAttendee), transition.Row.JoinedAt)
	default:
		return transition, 0, nil
	}
	if err != nil {
		return transition, 0, mapWriteError(err)
	}
	affected = tag.RowsAffected()
	if affected == 0 {
		return transition, 0, nil
	}

	occurred := r.now()
	if err = insertOutbox(ctx, tx, "activity", activityID, platformevents.TypeAttendanceChanged, platformevents.AttendanceChanged{
		ActivityID:  activityID,
		UserID:      actor.ID,
		Transition:  string(transition.Kind),
		IsCancelled: activity.IsCancelled,
		OccurredAt:  occurred,
	}); err != nil {
		return transition, 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return transition, 0, mapWriteError(err)
	}
	observability.RecordAttendanceChanged(occurred)
	return transition, affected, nil
}

// ListActivities reads the count and the page from one repeatable-read snapshot.
func (r *Repository) ListActivities(ctx context.Context, q domain.FeedQuery) ([]domain.ActivityRecord, int, error) {
	where := `WHERE ($1::timestamptz IS NULL OR a.starts_at >= $1)`
	args := []any{q.StartDate}
	switch q.Restriction {
	case domain.RestrictGoing:
		args = append(args, q.ViewerID)
		where += ` AND EXISTS (SELECT 1 FROM attendances x WHERE x.activity_id = a.activity_id AND x.user_id = $2)`
	case domain.RestrictHosting:
		args = append(args, q.ViewerID)
		where += ` AND EXISTS (SELECT 1 FROM attendances x WHERE x.activity_id = a.activity_id AND x.user_id = $2 AND x.role = 'host')`
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM activities a `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitArg := len(args) + 1
	pageQuery := `SELECT ` + activityColumns + ` FROM activities a ` + where +
		` ORDER BY a.starts_at, a.activity_id LIMIT $` + strconv.Itoa(limitArg) + ` OFFSET $` + strconv.Itoa(limitArg+1)
	rows, err := tx.Query(ctx, pageQuery, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	activities := make([]domain.Activity, 0, q.Limit)
	ids := make([]string, 0, q.Limit)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		activities = append(activities, a)
		ids = append(ids, a.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	attendees, err := loadAttendees(ctx, tx, ids)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	records := make([]domain.ActivityRecord, 0, len(activities))
	for _, a := range activities {
		records = append(records, domain.ActivityRecord{Activity: a, Attendees: attendees[a.ID]})
	}
	return records, total, nil
}

// AppendComment inserts the comment only while its activity exists.
func (r *Repository) AppendComment(ctx context.Context, comment domain.Comment) (affected int64, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil || affected == 0 {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `INSERT INTO comments (comment_id, activity_id, author_id, body, created_at)
        SELECT $1,$2,$3,$4,$5 WHERE EXISTS (SELECT 1 FROM activities WHERE activity_id = $2)`,
		comment.ID, comment.ActivityID, comment.AuthorID, comment.Body, comment.CreatedAt)
	if err != nil {
		return 0, mapWriteError(err)
	}
	if affected = tag.RowsAffected(); affected == 0 {
		return 0, nil
	}

	if err = insertOutbox(ctx, tx, "comment", comment.ID, platformevents.TypeCommentPosted, platformevents.CommentPosted{
		CommentID:  comment.ID,
		ActivityID: comment.ActivityID,
		AuthorID:   comment.AuthorID,
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt,
	}); err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	observability.RecordCommentPersisted(comment.CreatedAt)
	return affected, nil
}

// ListComments returns an activity's comments ascending by creation time.
func (r *Repository) ListComments(ctx context.Context, activityID string) ([]domain.CommentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.comment_id, c.activity_id, c.author_id, c.body, c.created_at,
            u.username, u.display_name, u.bio, u.image
        FROM comments c JOIN users u ON u.user_id = c.author_id
        WHERE c.activity_id = $1
        ORDER BY c.created_at, c.comment_id`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CommentRecord
	for rows.Next() {
		var c domain.CommentRecord
		if err := rows.Scan(&c.ID, &c.ActivityID, &c.AuthorID, &c.Body, &c.CreatedAt,
			&c.Author.Username, &c.Author.DisplayName, &c.Author.Bio, &c.Author.Image); err != nil {
			return nil, err
		}
		c.Author.ID = c.AuthorID
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListUserActivities lists the activities a user attends, filtered by predicate.
func (r *Repository) ListUserActivities(ctx context.Context, userID string, predicate domain.UserActivityPredicate, now time.Time) ([]domain.UserActivity, error) {
	query := `SELECT a.activity_id, a.title, a.category, a.starts_at, t.role
        FROM attendances t JOIN activities a ON a.activity_id = t.activity_id
        WHERE t.user_id = $1`
	args := []any{userID}
	switch predicate {
	case domain.PredicatePast:
		query += ` AND a.starts_at <= $2`
		args = append(args, now)
	case domain.PredicateFuture:
		query += ` AND a.starts_at >= $2`
		args = append(args, now)
	case domain.PredicateHosting:
		query += ` AND t.role = 'host'`
	}
	query += ` ORDER BY a.starts_at, a.activity_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserActivity
	for rows.Next() {
		var item domain.UserActivity
		var role string
		if err := rows.Scan(&item.ID, &item.Title, &item.Category, &item.Date, &role); err != nil {
			return nil, err
		}
		item.IsHost = domain.AttendeeRole(role) == domain.RoleHost
		out = append(out, item)
	}
	return out, rows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.Topic+"-value",
		meta.PartitionKeyFn(payload),
		body,
		fmt.Sprintf("%s:%s:%d", aggregateID, eventType, time.Now().UnixNano()),
	)
	return err
}

// mapWriteError translates constraint violations into domain sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrConflict)
	case pgForeignKeyViolation:
		if pgErr.ConstraintName == "attendances_user_id_fkey" || pgErr.ConstraintName == "comments_author_id_fkey" {
			return domain.ErrUserNotFound
		}
		return domain.ErrActivityNotFound
	}
	return err
}

// EventMetadata describes how to route an outbox event. Every event is keyed
// by its activity so per-activity order survives partitioning.
type EventMetadata struct {
	Topic          string
	PartitionKeyFn func(payload any) string
}

var eventCatalog = map[string]EventMetadata{
	platformevents.TypeActivityCreated: {
		Topic: "activity_events",
		PartitionKeyFn: func(p any) string {
			return p.(platformevents.ActivityCreated).ActivityID
		},
	},
	platformevents.TypeAttendanceChanged: {
		Topic: "attendance_events",
		PartitionKeyFn: func(p any) string {
			return p.(platformevents.AttendanceChanged).ActivityID
		},
	},
	platformevents.TypeCommentPosted: {
		Topic: "comment_events",
		PartitionKeyFn: func(p any) string {
			return p.(platformevents.CommentPosted).ActivityID
		},
	},
}
