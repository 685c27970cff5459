package database

import (
	"context"
	"database/sql"
)

// schema holds the idempotent DDL for the sync backend. Statements use
// IF NOT EXISTS so EnsureSchema can run on every startup; column changes
// still need a proper migration.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at    DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		PRIMARY KEY (id),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT      NOT NULL AUTO_INCREMENT,
		user_id    CHAR(36)    NOT NULL,
		token_hash CHAR(64)    NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		revoked_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		PRIMARY KEY (id),
		UNIQUE KEY uq_refresh_hash (token_hash),
		KEY ix_refresh_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orgs (
		id         CHAR(36)     NOT NULL,
		name       VARCHAR(255) NOT NULL,
		created_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS org_members (
		org_id  CHAR(36)    NOT NULL,
		user_id CHAR(36)    NOT NULL,
		role    VARCHAR(16) NOT NULL DEFAULT 'user',
		PRIMARY KEY (org_id, user_id),
		KEY ix_members_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS org_states (
		org_id     CHAR(36)    NOT NULL,
		data       LONGTEXT    NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		updated_by CHAR(36)    NULL,
		PRIMARY KEY (org_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS backups (
		id         BIGINT      NOT NULL AUTO_INCREMENT,
		org_id     CHAR(36)    NOT NULL,
		snapshot   LONGTEXT    NOT NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		created_by CHAR(36)    NULL,
		PRIMARY KEY (id),
		KEY ix_backups_org (org_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS org_settings (
		org_id     CHAR(36)    NOT NULL,
		branding   LONGTEXT    NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		PRIMARY KEY (org_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates all tables the backend needs if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
