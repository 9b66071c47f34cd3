package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"testing"

	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewCache starts an in-process Redis and returns a ready cache client.
func NewCache(t *testing.T) (*miniredis.Miniredis, *cache.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := cache.NewClient(rdb, cache.DefaultConfig(), zerolog.Nop())
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// Chapter returns a valid chapter record for subject.
func Chapter(subject string) chapters.Chapter {
	return chapters.Chapter{
		Subject:               subject,
		Chapter:               subject + " fundamentals",
		Class:                 "Class 11",
		Unit:                  "Unit 1",
		Status:                chapters.StatusInProgress,
		QuestionSolved:        7,
		YearWiseQuestionCount: map[string]int{"2021": 4, "2022": 6},
	}
}

// Seed inserts n chapters named Subject-0 .. Subject-(n-1).
func Seed(t *testing.T, store chapters.Store, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		ch := Chapter(fmt.Sprintf("Subject-%d", i))
		if err := store.InsertOne(context.Background(), &ch); err != nil {
			t.Fatalf("seed chapter %d: %v", i, err)
		}
	}
}

// RecordsJSON encodes records as a JSON array document.
func RecordsJSON(t *testing.T, records ...any) []byte {
	t.Helper()

	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("encode records: %v", err)
	}
	return data
}

// MultipartFile builds a multipart body with content under field.
// It returns the body and its Content-Type.
func MultipartFile(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, "chapters.json")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, mw.FormDataContentType()
}
