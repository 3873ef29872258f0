package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestDatabase_UserCRUD tests user database operations
func TestDatabase_UserCRUD(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	SetupSchema(t, env.DB)
	CleanDatabase(t, env.DB)

	ctx := context.Background()
	userID := uuid.New().String()

	// Create user
	t.Run("CreateUser", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			INSERT INTO users (id, name, email, authorized, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, userID, "Test User", "test@example.com", true, time.Now())

		if err != nil {
			t.Fatalf("Failed to create user: %v", err)
		}
	})

	// Read user
	t.Run("ReadUser", func(t *testing.T) {
		var id, name, email string
		err := env.DB.QueryRowContext(ctx, `
			SELECT id, name, email FROM users WHERE id = $1
		`, userID).Scan(&id, &name, &email)

		if err != nil {
			t.Fatalf("Failed to read user: %v", err)
		}

		if name != "Test User" {
			t.Errorf("Expected name 'Test User', got '%s'", name)
		}

		if email != "test@example.com" {
			t.Errorf("Expected email 'test@example.com', got '%s'", email)
		}
	})

	// Attach an id token
	t.Run("AttachIDToken", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			INSERT INTO id_tokens (token, user_id, created_at) VALUES ($1, $2, $3)
		`, "RFID-"+userID[:8], userID, time.Now())

		if err != nil {
			t.Fatalf("Failed to attach id token: %v", err)
		}

		var resolvedUserID string
		err = env.DB.QueryRowContext(ctx, `
			SELECT user_id FROM id_tokens WHERE token = $1
		`, "RFID-"+userID[:8]).Scan(&resolvedUserID)

		if err != nil {
			t.Fatalf("Failed to resolve id token: %v", err)
		}
		if resolvedUserID != userID {
			t.Errorf("Expected user_id '%s', got '%s'", userID, resolvedUserID)
		}
	})

	// Update user
	t.Run("UpdateUser", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			UPDATE users SET name = $1, updated_at = $2 WHERE id = $3
		`, "Updated User", time.Now(), userID)

		if err != nil {
			t.Fatalf("Failed to update user: %v", err)
		}

		var name string
		env.DB.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)

		if name != "Updated User" {
			t.Errorf("Expected name 'Updated User', got '%s'", name)
		}
	})
}

// TestDatabase_StationCRUD tests station and connector database operations
func TestDatabase_StationCRUD(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	SetupSchema(t, env.DB)
	CleanDatabase(t, env.DB)

	ctx := context.Background()
	stationID := "CP001"

	// Register a station
	t.Run("CreateStation", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			INSERT INTO stations (id, vendor, model, protocol_version, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, stationID, "ABB", "Terra 184", "ocpp1.6", "Unknown", time.Now())

		if err != nil {
			t.Fatalf("Failed to create station: %v", err)
		}
	})

	// Read station
	t.Run("ReadStation", func(t *testing.T) {
		var id, vendor, model, status string
		err := env.DB.QueryRowContext(ctx, `
			SELECT id, vendor, model, status FROM stations WHERE id = $1
		`, stationID).Scan(&id, &vendor, &model, &status)

		if err != nil {
			t.Fatalf("Failed to read station: %v", err)
		}

		if vendor != "ABB" {
			t.Errorf("Expected vendor 'ABB', got '%s'", vendor)
		}
	})

	// Transition to Online on first BootNotification/heartbeat
	t.Run("UpdateStationStatus", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			UPDATE stations SET status = $1, last_heartbeat_at = $2, updated_at = $2 WHERE id = $3
		`, "Online", time.Now(), stationID)

		if err != nil {
			t.Fatalf("Failed to update station status: %v", err)
		}

		var status string
		env.DB.QueryRowContext(ctx, `SELECT status FROM stations WHERE id = $1`, stationID).Scan(&status)

		if status != "Online" {
			t.Errorf("Expected status 'Online', got '%s'", status)
		}
	})

	// Upsert a connector
	t.Run("UpsertConnector", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			INSERT INTO connectors (station_id, connector_id, status, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (station_id, connector_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		`, stationID, 1, "Available", time.Now())

		if err != nil {
			t.Fatalf("Failed to upsert connector: %v", err)
		}

		var status string
		err = env.DB.QueryRowContext(ctx, `
			SELECT status FROM connectors WHERE station_id = $1 AND connector_id = $2
		`, stationID, 1).Scan(&status)

		if err != nil {
			t.Fatalf("Failed to read connector: %v", err)
		}
		if status != "Available" {
			t.Errorf("Expected connector status 'Available', got '%s'", status)
		}
	})
}

// TestDatabase_TransactionLifecycle tests the full open/meter/close
// sequence against the schema the repository layer writes.
func TestDatabase_TransactionLifecycle(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	SetupSchema(t, env.DB)
	CleanDatabase(t, env.DB)

	ctx := context.Background()

	stationID := "CP001"
	txKey := uuid.New().String()

	env.DB.ExecContext(ctx, `
		INSERT INTO stations (id, vendor, model, protocol_version, status, created_at, updated_at)
		VALUES ($1, 'ABB', 'Terra', 'ocpp1.6', 'Online', $2, $2)
	`, stationID, time.Now())

	env.DB.ExecContext(ctx, `
		INSERT INTO connectors (station_id, connector_id, status, updated_at)
		VALUES ($1, 1, 'Charging', $2)
	`, stationID, time.Now())

	// Open transaction
	t.Run("OpenTransaction", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			INSERT INTO transactions (key, station_id, connector_id, protocol_version, on_wire_id_int, id_token, status, meter_start_wh, started_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $9)
		`, txKey, stationID, 1, "ocpp1.6", 1, "RFID001", "Active", 1000, time.Now())

		if err != nil {
			t.Fatalf("Failed to open transaction: %v", err)
		}

		_, err = env.DB.ExecContext(ctx, `
			UPDATE connectors SET current_transaction_key = $1 WHERE station_id = $2 AND connector_id = $3
		`, txKey, stationID, 1)
		if err != nil {
			t.Fatalf("Failed to link connector to transaction: %v", err)
		}
	})

	// Append meter samples
	t.Run("AppendMeterSamples", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := env.DB.ExecContext(ctx, `
				INSERT INTO meter_samples (transaction_key, timestamp, energy_wh, measurand, created_at)
				VALUES ($1, $2, $3, $4, $2)
			`, txKey, time.Now(), 1000+float64(i)*500, "Energy.Active.Import.Register")

			if err != nil {
				t.Fatalf("Failed to append meter sample: %v", err)
			}
		}

		var count int
		env.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM meter_samples WHERE transaction_key = $1`, txKey).Scan(&count)
		if count != 3 {
			t.Errorf("Expected 3 meter samples, got %d", count)
		}
	})

	// Close transaction, idempotently. The connector moves to Finishing
	// and keeps its transaction ref — HasActiveTransaction treats
	// Finishing as still owning a transaction — until a later
	// StatusNotification reports Available.
	closeTx := func() {
		tx, err := env.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("Failed to begin transaction: %v", err)
		}

		stopTime := time.Now()
		_, err = tx.ExecContext(ctx, `
			UPDATE transactions SET status = 'Completed', meter_stop_wh = $1, energy_delivered_wh = $1 - meter_start_wh, stopped_at = $2, updated_at = $2
			WHERE key = $3 AND status = 'Active'
		`, 2500, stopTime, txKey)
		if err != nil {
			tx.Rollback()
			t.Fatalf("Failed to close transaction: %v", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE connectors SET status = 'Finishing', updated_at = $1
			WHERE station_id = $2 AND connector_id = $3
		`, stopTime, stationID, 1)
		if err != nil {
			tx.Rollback()
			t.Fatalf("Failed to update connector status: %v", err)
		}

		if err := tx.Commit(); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
	}

	t.Run("CloseTransaction", func(t *testing.T) {
		closeTx()

		var status string
		var energy int
		env.DB.QueryRowContext(ctx, `SELECT status, energy_delivered_wh FROM transactions WHERE key = $1`, txKey).Scan(&status, &energy)

		if status != "Completed" {
			t.Errorf("Expected status 'Completed', got '%s'", status)
		}
		if energy != 1500 {
			t.Errorf("Expected energy_delivered_wh 1500, got %d", energy)
		}

		var connStatus sql.NullString
		var connTxKey sql.NullString
		env.DB.QueryRowContext(ctx, `
			SELECT status, current_transaction_key FROM connectors WHERE station_id = $1 AND connector_id = $2
		`, stationID, 1).Scan(&connStatus, &connTxKey)

		if connStatus.String != "Finishing" {
			t.Errorf("Expected connector status 'Finishing', got '%s'", connStatus.String)
		}
		if !connTxKey.Valid {
			t.Error("Expected connector's current_transaction_key to remain set while Finishing")
		}
	})

	t.Run("AvailableClearsTransactionRef", func(t *testing.T) {
		_, err := env.DB.ExecContext(ctx, `
			UPDATE connectors SET status = 'Available', current_transaction_key = NULL, updated_at = $1
			WHERE station_id = $2 AND connector_id = $3
		`, time.Now(), stationID, 1)
		if err != nil {
			t.Fatalf("Failed to transition connector to Available: %v", err)
		}

		var connStatus sql.NullString
		var connTxKey sql.NullString
		env.DB.QueryRowContext(ctx, `
			SELECT status, current_transaction_key FROM connectors WHERE station_id = $1 AND connector_id = $2
		`, stationID, 1).Scan(&connStatus, &connTxKey)

		if connStatus.String != "Available" {
			t.Errorf("Expected connector status 'Available', got '%s'", connStatus.String)
		}
		if connTxKey.Valid {
			t.Error("Expected connector's current_transaction_key to be cleared once Available")
		}
	})

	// Closing an already-completed transaction is a no-op, not an error.
	t.Run("CloseIsIdempotent", func(t *testing.T) {
		closeTx()

		var status string
		env.DB.QueryRowContext(ctx, `SELECT status FROM transactions WHERE key = $1`, txKey).Scan(&status)
		if status != "Completed" {
			t.Errorf("Expected status to remain 'Completed', got '%s'", status)
		}
	})
}

// TestDatabase_Transactions tests database transactions (ACID)
func TestDatabase_Transactions(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	SetupSchema(t, env.DB)
	CleanDatabase(t, env.DB)

	ctx := context.Background()

	// Test rollback
	t.Run("Rollback", func(t *testing.T) {
		tx, err := env.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("Failed to begin transaction: %v", err)
		}

		userID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, name, email, authorized, created_at, updated_at)
			VALUES ($1, 'Rollback Test', 'rollback@test.com', true, $2, $2)
		`, userID, time.Now())

		if err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}

		if err := tx.Rollback(); err != nil {
			t.Fatalf("Failed to rollback: %v", err)
		}

		var count int
		env.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, userID).Scan(&count)

		if count != 0 {
			t.Error("User should not exist after rollback")
		}
	})

	// Test commit
	t.Run("Commit", func(t *testing.T) {
		tx, err := env.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("Failed to begin transaction: %v", err)
		}

		userID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, name, email, authorized, created_at, updated_at)
			VALUES ($1, 'Commit Test', 'commit@test.com', true, $2, $2)
		`, userID, time.Now())

		if err != nil {
			tx.Rollback()
			t.Fatalf("Failed to insert: %v", err)
		}

		if err := tx.Commit(); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}

		var count int
		env.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, userID).Scan(&count)

		if count != 1 {
			t.Error("User should exist after commit")
		}
	})
}

// skipIfNoDatabase skips the test if database is not available
func skipIfNoDatabase(t *testing.T, db *sql.DB) {
	if db == nil {
		t.Skip("Database not available")
	}
}
