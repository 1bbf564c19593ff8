package redis_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	redisadapter "github.com/platemate/platemate-server/internal/adapter/outbound/redis"
)

var testEncryptionKey = []byte("0123456789abcdef0123456789abcdef") // AES-256

func newSecureFixture(t *testing.T) (*redisadapter.SecureService, *fakeClient) {
	t.Helper()
	base, client := newCacheFixture(t)

	svc, err := redisadapter.NewSecureService(base, testEncryptionKey, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSecureService() error = %v", err)
	}
	return svc, client
}

func TestSecureServiceRejectsBadKey(t *testing.T) {
	base, _ := newCacheFixture(t)
	if _, err := redisadapter.NewSecureService(base, []byte("short"), zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a non-AES key length")
	}
}

func TestSecureRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSecureFixture(t)

	want := testValue{Name: "alice", Count: 7}
	if !svc.Set(ctx, "session:s1", want, time.Minute) {
		t.Fatal("Set() = false")
	}

	var got testValue
	if !svc.Get(ctx, "session:s1", &got) {
		t.Fatal("Get() = false, want hit")
	}
	if got != want {
		t.Errorf("got = %+v, want %+v", got, want)
	}
}

func TestSensitiveKeysAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	svc, client := newSecureFixture(t)

	if !svc.Set(ctx, "user:42", testValue{Name: "secret-name"}, time.Minute) {
		t.Fatal("Set() = false")
	}

	raw := client.data["user:42"]
	if strings.Contains(raw, "secret-name") {
		t.Error("sensitive payload stored in plaintext")
	}

	var env struct {
		Encrypted bool `json:"enc"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("stored value is not an envelope: %v", err)
	}
	if !env.Encrypted {
		t.Error("user: prefixed key should be marked encrypted")
	}
}

func TestNonSensitiveKeysStayPlain(t *testing.T) {
	ctx := context.Background()
	svc, client := newSecureFixture(t)

	if !svc.Set(ctx, "recipe:1", testValue{Name: "carbonara"}, time.Minute) {
		t.Fatal("Set() = false")
	}

	var env struct {
		Encrypted bool `json:"enc"`
	}
	if err := json.Unmarshal([]byte(client.data["recipe:1"]), &env); err != nil {
		t.Fatalf("stored value is not an envelope: %v", err)
	}
	if env.Encrypted {
		t.Error("recipe: prefixed key should not be encrypted")
	}
}

func TestLargePayloadsAreCompressed(t *testing.T) {
	ctx := context.Background()
	svc, client := newSecureFixture(t)

	big := testValue{Name: strings.Repeat("repetitive ", 1000)}
	if !svc.Set(ctx, "recipe:big", big, time.Minute) {
		t.Fatal("Set() = false")
	}

	var env struct {
		Compressed bool   `json:"cmp"`
		Data       []byte `json:"data"`
	}
	if err := json.Unmarshal([]byte(client.data["recipe:big"]), &env); err != nil {
		t.Fatalf("stored value is not an envelope: %v", err)
	}
	if !env.Compressed {
		t.Error("payload over the threshold should be compressed")
	}
	if len(env.Data) >= 11000 {
		t.Errorf("compressed size = %d, want smaller than the payload", len(env.Data))
	}

	var got testValue
	if !svc.Get(ctx, "recipe:big", &got) {
		t.Fatal("Get() = false, want hit")
	}
	if got.Name != big.Name {
		t.Error("compressed value did not round-trip")
	}
}

func TestTamperedEnvelopeIsDropped(t *testing.T) {
	ctx := context.Background()
	svc, client := newSecureFixture(t)

	if !svc.Set(ctx, "session:s1", testValue{Name: "x"}, time.Minute) {
		t.Fatal("Set() = false")
	}

	// Flip ciphertext bytes; GCM authentication must reject the payload.
	var env struct {
		Version    int    `json:"v"`
		Encrypted  bool   `json:"enc"`
		Compressed bool   `json:"cmp"`
		Data       []byte `json:"data"`
	}
	if err := json.Unmarshal([]byte(client.data["session:s1"]), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	env.Data[len(env.Data)-1] ^= 0xff
	tampered, _ := json.Marshal(env)
	client.data["session:s1"] = string(tampered)

	var got testValue
	if svc.Get(ctx, "session:s1", &got) {
		t.Fatal("Get() on tampered envelope = true, want miss")
	}
	if _, ok := client.data["session:s1"]; ok {
		t.Error("tampered entry should be deleted")
	}
}

func TestSetWithTagsAndInvalidateByTag(t *testing.T) {
	ctx := context.Background()
	svc, client := newSecureFixture(t)

	if !svc.SetWithTags(ctx, "recipe:1", testValue{}, time.Minute, "menu-7") {
		t.Fatal("SetWithTags() = false")
	}
	if !svc.SetWithTags(ctx, "recipe:2", testValue{}, time.Minute, "menu-7") {
		t.Fatal("SetWithTags() = false")
	}
	if len(client.sets["tag:menu-7"]) != 2 {
		t.Fatalf("tag index size = %d, want 2", len(client.sets["tag:menu-7"]))
	}

	if n := svc.InvalidateByTag(ctx, "menu-7"); n != 2 {
		t.Errorf("InvalidateByTag() = %d, want 2", n)
	}
	var got testValue
	if svc.Get(ctx, "recipe:1", &got) {
		t.Error("tag invalidation should remove members")
	}
}

func TestSecureGetOrSet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSecureFixture(t)

	calls := 0
	fallback := func(context.Context) (any, error) {
		calls++
		return testValue{Name: "loaded"}, nil
	}

	var got testValue
	if err := svc.GetOrSet(ctx, "user:9", time.Minute, fallback, &got); err != nil {
		t.Fatalf("GetOrSet() error = %v", err)
	}
	got = testValue{}
	if err := svc.GetOrSet(ctx, "user:9", time.Minute, fallback, &got); err != nil {
		t.Fatalf("GetOrSet() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fallback calls = %d, want 1", calls)
	}
	if got.Name != "loaded" {
		t.Errorf("got = %+v", got)
	}
}
