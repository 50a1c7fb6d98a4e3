package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/recoveryfinder/models"
)

var ravi = models.Record{
	FullName:   "Ravi Kumar",
	FatherName: "Suresh Kumar",
	Address:    "12, Gandhi Nagar, Patna",
	Country:    "India",
	State:      "Bihar",
	City:       "Patna",
	Price:      "₹18625",
}

func TestCSVWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "output.csv")

	s, err := OpenCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ravi))
	require.NoError(t, s.Close())

	// a second run appends without repeating the header
	s, err = OpenCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(models.EmptyRecord()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Full Name,Father Name,Address,Country,State,City,Price\n"+
			"Ravi Kumar,Suresh Kumar,\"12, Gandhi Nagar, Patna\",India,Bihar,Patna,₹18625\n"+
			"unavailable,unavailable,unavailable,unavailable,unavailable,unavailable,unavailable\n",
		string(data))
}

func TestCSVAppendIsDurableBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	s, err := OpenCSV(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ravi))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ravi Kumar")
}

func TestCSVHeaderForEmptyExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	s, err := OpenCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Full Name,Father Name,Address,Country,State,City,Price\n", string(data))
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "records.db")
	s, err := OpenSQLite(path, "run-1")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ravi))
	require.NoError(t, s.Append(models.EmptyRecord()))

	assert.Equal(t, []models.Record{ravi, models.EmptyRecord()}, storedRecords(t, s, "run-1"))
	assert.Empty(t, storedRecords(t, s, "run-2"))
}

func storedRecords(t *testing.T, s *SQLite, runID string) []models.Record {
	t.Helper()
	rows, err := s.db.Query(`SELECT full_name, father_name, address, country, state, city, price
		FROM records WHERE run_id = ? ORDER BY id`, runID)
	require.NoError(t, err)
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var r models.Record
		require.NoError(t, rows.Scan(&r.FullName, &r.FatherName, &r.Address, &r.Country, &r.State, &r.City, &r.Price))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestRedisStream(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 0})
	defer client.Close()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	stream := "test_recoveryfinder_records"
	client.Del(ctx, stream)
	defer client.Del(ctx, stream)

	s := NewRedisStream(ctx, "localhost:6379", 0, stream, "run-1")
	require.NoError(t, s.Append(ravi))
	require.NoError(t, s.Close())

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].Values["run_id"])

	var got models.Record
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["record"].(string)), &got))
	assert.Equal(t, ravi, got)
}

type memSink struct {
	records   []models.Record
	appendErr error
	closeErr  error
	closes    int
}

func (m *memSink) Append(rec models.Record) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memSink) Close() error {
	m.closes++
	return m.closeErr
}

func TestFanout(t *testing.T) {
	primary := &memSink{}
	broken := &memSink{appendErr: errors.New("redis down"), closeErr: errors.New("close failed")}
	healthy := &memSink{}
	f := NewFanout(primary, broken, nil, healthy)

	require.NoError(t, f.Append(ravi))
	assert.Equal(t, []models.Record{ravi}, primary.records)
	assert.Equal(t, []models.Record{ravi}, healthy.records)

	require.NoError(t, f.Close())
	assert.Equal(t, 1, primary.closes)
	assert.Equal(t, 1, broken.closes)
	assert.Equal(t, 1, healthy.closes)
}

func TestFanoutPrimaryFailure(t *testing.T) {
	f := NewFanout(&memSink{appendErr: errors.New("disk full")})
	err := f.Append(ravi)
	assert.True(t, models.HasCode(err, models.ErrCodeSink))
}

func TestOnceClosesExactlyOnce(t *testing.T) {
	inner := &memSink{closeErr: errors.New("boom")}
	o := NewOnce(inner)

	require.NoError(t, o.Append(ravi))
	assert.Equal(t, 1, o.Count())

	assert.EqualError(t, o.Close(), "boom")
	assert.EqualError(t, o.Close(), "boom")
	assert.Equal(t, 1, inner.closes)
	assert.ErrorIs(t, o.Append(ravi), ErrClosed)
	assert.Equal(t, 1, o.Count())
}
