package mem

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	t "github.com/discoursio/core/server/store/types"
)

func TestGetSetDel(t_ *testing.T) {
	a := New()
	ctx := context.Background()

	if _, err := a.Get(ctx, "missing"); err != t.ErrNotFound {
		t_.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := a.Set(ctx, "k", "v"); err != nil {
		t_.Fatal(err)
	}
	if got, err := a.Get(ctx, "k"); err != nil || got != "v" {
		t_.Errorf("Get(k) = %q, %v", got, err)
	}

	// MGet keeps positions: missing keys come back as empty strings.
	a.Set(ctx, "k2", "v2")
	got, err := a.MGet(ctx, "k", "missing", "k2")
	if err != nil {
		t_.Fatal(err)
	}
	if diff := cmp.Diff([]string{"v", "", "v2"}, got); diff != "" {
		t_.Errorf("MGet mismatch (-want +got):\n%s", diff)
	}

	if err := a.Del(ctx, "k", "k2", "missing"); err != nil {
		t_.Fatal(err)
	}
	if _, err := a.Get(ctx, "k"); err != t.ErrNotFound {
		t_.Errorf("Get after Del = %v, want ErrNotFound", err)
	}
}

func TestSets(t_ *testing.T) {
	a := New()
	ctx := context.Background()

	a.SetAdd(ctx, "s", "a", "b")
	a.SetAdd(ctx, "s", "b", "c")

	members, err := a.SetMembers(ctx, "s")
	if err != nil {
		t_.Fatal(err)
	}
	sort.Strings(members)
	if diff := cmp.Diff([]string{"a", "b", "c"}, members); diff != "" {
		t_.Errorf("SetMembers mismatch (-want +got):\n%s", diff)
	}

	a.SetRemove(ctx, "s", "b", "nosuch")
	members, _ = a.SetMembers(ctx, "s")
	sort.Strings(members)
	if diff := cmp.Diff([]string{"a", "c"}, members); diff != "" {
		t_.Errorf("SetMembers after remove mismatch (-want +got):\n%s", diff)
	}

	if members, _ := a.SetMembers(ctx, "empty"); len(members) != 0 {
		t_.Errorf("SetMembers(empty) = %v", members)
	}
}

func TestLists(t_ *testing.T) {
	a := New()
	ctx := context.Background()

	// Push prepends: the most recent value ends up first.
	a.ListPush(ctx, "l", "1")
	a.ListPush(ctx, "l", "2")
	a.ListPush(ctx, "l", "3")

	got, err := a.ListRange(ctx, "l", 0, -1)
	if err != nil {
		t_.Fatal(err)
	}
	if diff := cmp.Diff([]string{"3", "2", "1"}, got); diff != "" {
		t_.Errorf("full range mismatch (-want +got):\n%s", diff)
	}

	// Inclusive window.
	got, _ = a.ListRange(ctx, "l", 1, 2)
	if diff := cmp.Diff([]string{"2", "1"}, got); diff != "" {
		t_.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	if got, _ := a.ListRange(ctx, "l", 5, 7); len(got) != 0 {
		t_.Errorf("out-of-range window = %v", got)
	}
	if got, _ := a.ListRange(ctx, "nosuch", 0, -1); len(got) != 0 {
		t_.Errorf("range of missing list = %v", got)
	}

	// Remove deletes every occurrence of the value.
	a.ListPush(ctx, "l", "2")
	a.ListRemove(ctx, "l", "2")
	got, _ = a.ListRange(ctx, "l", 0, -1)
	if diff := cmp.Diff([]string{"3", "1"}, got); diff != "" {
		t_.Errorf("after remove mismatch (-want +got):\n%s", diff)
	}

	if n, _ := a.ListLen(ctx, "l"); n != 2 {
		t_.Errorf("ListLen = %d, want 2", n)
	}
	if n, _ := a.ListLen(ctx, "nosuch"); n != 0 {
		t_.Errorf("ListLen(missing) = %d, want 0", n)
	}
}

func TestIncrBy(t_ *testing.T) {
	a := New()
	ctx := context.Background()

	if n, err := a.IncrBy(ctx, "c", 1); err != nil || n != 1 {
		t_.Errorf("first IncrBy = %d, %v", n, err)
	}
	if n, _ := a.IncrBy(ctx, "c", 5); n != 6 {
		t_.Errorf("second IncrBy = %d, want 6", n)
	}
}
