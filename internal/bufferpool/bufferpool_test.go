package bufferpool

import (
	"bytes"
	"testing"

	"github.com/crustylabs/crustydb/internal/container"
)

func setup(t *testing.T, capacity int) (*Pool, container.ID) {
	t.Helper()
	cat := container.NewCatalog()
	cat.Register(1, container.NewMemFile())
	return New(cat, capacity), container.ID(1)
}

func TestCreateAndReadBack(t *testing.T) {
	pool, cid := setup(t, 4)

	wg, pid, err := pool.CreateNewPage(cid)
	if err != nil {
		t.Fatal(err)
	}
	copy(wg.Bytes()[16:20], []byte("abcd"))
	wg.MarkDirty()
	wg.Release()

	rg, err := pool.GetPageForRead(Key{CID: cid, PID: pid})
	if err != nil {
		t.Fatal(err)
	}
	defer rg.Release()
	if !bytes.Equal(rg.Bytes()[16:20], []byte("abcd")) {
		t.Fatalf("unexpected bytes: %q", rg.Bytes()[16:20])
	}
}

func TestSameKeyReturnsSameFrame(t *testing.T) {
	pool, cid := setup(t, 4)
	wg, pid, err := pool.CreateNewPage(cid)
	if err != nil {
		t.Fatal(err)
	}
	wg.Release()

	g1, err := pool.GetPageForRead(Key{CID: cid, PID: pid})
	if err != nil {
		t.Fatal(err)
	}
	g2, err := pool.GetPageForRead(Key{CID: cid, PID: pid})
	if err != nil {
		t.Fatal(err)
	}
	if g1.frame != g2.frame {
		t.Fatal("expected same resident frame for repeated reads of same key")
	}
	g1.Release()
	g2.Release()
}

func TestEvictionWritesBackDirtyFrame(t *testing.T) {
	pool, cid := setup(t, 1) // single frame forces eviction on every new page

	wg1, pid1, err := pool.CreateNewPage(cid)
	if err != nil {
		t.Fatal(err)
	}
	copy(wg1.Bytes()[16:20], []byte("wxyz"))
	wg1.MarkDirty()
	wg1.Release()

	// Forces eviction of pid1's frame since capacity is 1.
	wg2, pid2, err := pool.CreateNewPage(cid)
	if err != nil {
		t.Fatal(err)
	}
	wg2.Release()
	if pid1 == pid2 {
		t.Fatal("expected distinct page ids")
	}

	rg, err := pool.GetPageForRead(Key{CID: cid, PID: pid1})
	if err != nil {
		t.Fatal(err)
	}
	defer rg.Release()
	if !bytes.Equal(rg.Bytes()[16:20], []byte("wxyz")) {
		t.Fatalf("dirty write-back lost on eviction: %q", rg.Bytes()[16:20])
	}
}

func TestFlushAllClearsDirtyFlag(t *testing.T) {
	pool, cid := setup(t, 4)
	wg, _, err := pool.CreateNewPage(cid)
	if err != nil {
		t.Fatal(err)
	}
	wg.MarkDirty()
	wg.Release()

	if err := pool.FlushAll(); err != nil {
		t.Fatal(err)
	}
}

func TestReadGuardTryUpgrade(t *testing.T) {
	pool, cid := setup(t, 4)
	wg, pid, err := pool.CreateNewPage(cid)
	if err != nil {
		t.Fatal(err)
	}
	wg.Release()

	rg, err := pool.GetPageForRead(Key{CID: cid, PID: pid})
	if err != nil {
		t.Fatal(err)
	}
	upgraded, ok := rg.TryUpgrade()
	if !ok {
		t.Fatal("sole reader should be able to upgrade")
	}
	upgraded.Release()
}

func TestReadGuardTryUpgradeFailsWithMultipleReaders(t *testing.T) {
	pool, cid := setup(t, 4)
	wg, pid, err := pool.CreateNewPage(cid)
	if err != nil {
		t.Fatal(err)
	}
	wg.Release()

	r1, err := pool.GetPageForRead(Key{CID: cid, PID: pid})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := pool.GetPageForRead(Key{CID: cid, PID: pid})
	if err != nil {
		t.Fatal(err)
	}
	defer r1.Release()
	defer r2.Release()

	if _, ok := r1.TryUpgrade(); ok {
		t.Fatal("upgrade should fail with a second active reader")
	}
}
