package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAccountRejectsBoundProxy(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ok, err := s.AddAccount(ctx, "a@example.com", "http://u:p@1.2.3.4:8080")
	if err != nil || !ok {
		t.Fatalf("first bind: ok=%v err=%v", ok, err)
	}

	// Same proxy for another account must fail without mutating anything.
	ok, err = s.AddAccount(ctx, "b@example.com", "http://u:p@1.2.3.4:8080")
	if err != nil {
		t.Fatalf("second bind: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate proxy bind to be rejected")
	}

	owner, bound, err := s.ProxyOwner(ctx, "http://u:p@1.2.3.4:8080")
	if err != nil || !bound {
		t.Fatalf("proxy owner: bound=%v err=%v", bound, err)
	}
	if owner != "a@example.com" {
		t.Fatalf("binding changed: owner=%q", owner)
	}

	proxies, err := s.ProxiesForAccount(ctx, "b@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(proxies) != 0 {
		t.Fatalf("account b should hold no proxies, got %v", proxies)
	}
}

func TestAddAccountRejectsEmptyProxy(t *testing.T) {
	s := openTestStore(t)
	ok, err := s.AddAccount(context.Background(), "a@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("empty proxy must not bind")
	}
}

func TestReseedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pairs := map[string]string{
		"a@example.com": "http://1.1.1.1:80",
		"b@example.com": "http://2.2.2.2:80",
	}
	seed := func() {
		for email, proxy := range pairs {
			if _, bound, err := s.ProxyOwner(ctx, proxy); err != nil {
				t.Fatal(err)
			} else if bound {
				continue
			}
			if ok, err := s.AddAccount(ctx, email, proxy); err != nil || !ok {
				t.Fatalf("seed %s: ok=%v err=%v", email, ok, err)
			}
		}
	}

	seed()
	seed()

	for email, proxy := range pairs {
		proxies, err := s.ProxiesForAccount(ctx, email)
		if err != nil {
			t.Fatal(err)
		}
		if len(proxies) != 1 || proxies[0] != proxy {
			t.Fatalf("%s: expected exactly [%s], got %v", email, proxy, proxies)
		}
	}
}

func TestTotalPointsUsesMaxPerEmail(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// Out-of-order values for one user id: the aggregate must use the max.
	for _, v := range []float64{10, 7, 15} {
		if err := s.RecordPoints(ctx, "user-1", "a@example.com", v); err != nil {
			t.Fatal(err)
		}
	}
	// Second user id on the same email, lower value: max per email wins.
	if err := s.RecordPoints(ctx, "user-2", "a@example.com", 9); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPoints(ctx, "user-3", "b@example.com", 5); err != nil {
		t.Fatal(err)
	}

	total, err := s.TotalPoints(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 20 {
		t.Fatalf("total = %v, want 20 (max 15 for a@ + 5 for b@)", total)
	}
}

func TestWithdrawExtraProxyNeverRepeats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	urls := []string{"http://1.1.1.1:80", "http://2.2.2.2:80", "http://3.3.3.3:80"}
	if err := s.PushExtraProxies(ctx, urls); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for i := 0; i < len(urls); i++ {
		url, ok, err := s.WithdrawExtraProxy(ctx)
		if err != nil || !ok {
			t.Fatalf("withdraw %d: ok=%v err=%v", i, ok, err)
		}
		if seen[url] {
			t.Fatalf("proxy %s handed out twice", url)
		}
		seen[url] = true
	}

	// Latest-inserted-first.
	if _, ok, _ := s.WithdrawExtraProxy(ctx); ok {
		t.Fatal("pool should be exhausted")
	}
}

func TestWithdrawExtraProxyIsLIFO(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.PushExtraProxies(ctx, []string{"http://old:80", "http://new:80"}); err != nil {
		t.Fatal(err)
	}
	url, ok, err := s.WithdrawExtraProxy(ctx)
	if err != nil || !ok {
		t.Fatalf("withdraw: ok=%v err=%v", ok, err)
	}
	if url != "http://new:80" {
		t.Fatalf("expected newest proxy first, got %s", url)
	}
}

func TestResetVolatileStateKeepsLoginData(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.AddAccount(ctx, "a@example.com", "http://1.1.1.1:80"); err != nil {
		t.Fatal(err)
	}
	if err := s.PushExtraProxies(ctx, []string{"http://2.2.2.2:80"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPoints(ctx, "user-1", "a@example.com", 12); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertLoginData(ctx, "a@example.com", "user-1", "device-1", "token-1"); err != nil {
		t.Fatal(err)
	}

	if err := s.ResetVolatileState(ctx); err != nil {
		t.Fatal(err)
	}

	if _, bound, _ := s.ProxyOwner(ctx, "http://1.1.1.1:80"); bound {
		t.Fatal("bindings should be gone")
	}
	if _, ok, _ := s.WithdrawExtraProxy(ctx); ok {
		t.Fatal("extra pool should be gone")
	}
	if total, _ := s.TotalPoints(ctx); total != 0 {
		t.Fatalf("points should be gone, got %v", total)
	}

	ld, ok, err := s.GetLoginData(ctx, "a@example.com", "device-1")
	if err != nil || !ok {
		t.Fatalf("login data lost: ok=%v err=%v", ok, err)
	}
	if ld.AccessToken != "token-1" || ld.UserID != "user-1" {
		t.Fatalf("login data corrupted: %+v", ld)
	}
}

func TestUpsertLoginDataOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertLoginData(ctx, "a@example.com", "user-1", "device-1", "old"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertLoginData(ctx, "a@example.com", "user-1", "device-1", "new"); err != nil {
		t.Fatal(err)
	}

	ld, ok, err := s.GetLoginData(ctx, "a@example.com", "device-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if ld.AccessToken != "new" {
		t.Fatalf("token = %q, want the overwritten value", ld.AccessToken)
	}
}
