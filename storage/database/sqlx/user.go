package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/user"
	"github.com/trezcool/admissions/storage/database"
)

const userColumns = `id, email, name, initials, role, program, group_name, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	Name         string     `db:"name"`
	Initials     string     `db:"initials"`
	Role         string     `db:"role"`
	Program      string     `db:"program"`
	Group        string     `db:"group_name"`
	PasswordHash string     `db:"password_hash"`
	CreatedAt    int64      `db:"created_at"`
	UpdatedAt    int64      `db:"updated_at"`
	LastLogin    null.Int64 `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		Email:        usr.Email,
		Name:         usr.Name,
		Initials:     usr.Initials,
		Role:         usr.Role,
		Program:      usr.Program,
		Group:        usr.Group,
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    core.ToMillis(usr.CreatedAt),
		UpdatedAt:    core.ToMillis(usr.UpdatedAt),
	}
	if usr.LastLogin != nil {
		row.LastLogin = null.Int64From(core.ToMillis(*usr.LastLogin))
	}
	return row
}

func (row userRow) toUser() user.User {
	usr := user.User{
		ID:           row.ID,
		Email:        row.Email,
		Name:         row.Name,
		Initials:     row.Initials,
		Role:         row.Role,
		Program:      row.Program,
		Group:        row.Group,
		PasswordHash: []byte(row.PasswordHash),
		CreatedAt:    core.FromMillis(row.CreatedAt),
		UpdatedAt:    core.FromMillis(row.UpdatedAt),
	}
	if row.LastLogin.Valid {
		ll := core.FromMillis(row.LastLogin.Int64)
		usr.LastLogin = &ll
	}
	return usr
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :name, :initials, :role, :program, :group_name, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, newUserRow(usr)); err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, core.NewStorageError("inserting user", err)
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row userRow
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if database.IsNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, core.NewStorageError("selecting user", err)
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if id == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, "id = ?", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	if email == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, "email = ?", core.CleanString(email, true /* lower */))
}

func (repo *userRepository) UpdatePassword(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	q := repo.db.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q, string(hash), core.ToMillis(updatedAt), id)
	if err != nil {
		return core.NewStorageError("updating password", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	q := repo.db.Rebind(`UPDATE users SET last_login = ? WHERE id = ?`)
	if _, err := repo.db.ExecContext(ctx, q, core.ToMillis(at), id); err != nil {
		return core.NewStorageError("setting last login", err)
	}
	return nil
}

// QueryAllUsers is used by the admin CLI only.
func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`); err != nil {
		return nil, core.NewStorageError("selecting users", err)
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}
