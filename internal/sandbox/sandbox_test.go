package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

func TestInstantiateCommonJS(t *testing.T) {
	src := []byte(`const { createHash } = require("crypto");
module.exports = {
	sign(data) { return createHash("sha256").update(data).digest("hex"); },
};
`)
	inst, err := Instantiate(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	out, err := inst.Call(context.Background(), "sign", "payload")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	sum := sha256.Sum256([]byte("payload"))
	if want := hex.EncodeToString(sum[:]); out != want {
		t.Errorf("sign() = %v, want %q", out, want)
	}
}

func TestInstantiateESModule(t *testing.T) {
	src := []byte(`import { createHmac } from "node:crypto";

export function mac(data, key) {
	return createHmac("sha256", key).update(data).digest("hex");
}

export default mac;
`)
	inst, err := Instantiate(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	if !inst.Has("mac") || !inst.Has("default") {
		t.Errorf("Exports() = %v, want mac and default", inst.Exports())
	}

	out, err := inst.Call(context.Background(), "default", "data", "key")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	m := hmac.New(sha256.New, []byte("key"))
	m.Write([]byte("data"))
	if want := hex.EncodeToString(m.Sum(nil)); out != want {
		t.Errorf("mac() = %v, want %q", out, want)
	}
}

func TestInstantiateRejectsUnknownModule(t *testing.T) {
	src := []byte(`const fs = require("fs");
module.exports = () => fs.readFileSync("/etc/passwd");
`)
	if _, err := Instantiate(src, DefaultConfig()); err == nil {
		t.Fatal("fs require instantiated without error")
	}
}

func TestInstantiateRejectsUnknownImport(t *testing.T) {
	src := []byte(`import fs from "fs";
export default fs;
`)
	_, err := Instantiate(src, DefaultConfig())
	if err == nil {
		t.Fatal("fs import instantiated without error")
	}
	if !strings.Contains(err.Error(), "module not available") {
		t.Errorf("error = %v", err)
	}
}

func TestCallTimeout(t *testing.T) {
	src := []byte(`module.exports = { loop() { for (;;) {} } };`)
	cfg := DefaultConfig()
	cfg.CallTimeout = 100 * time.Millisecond

	inst, err := Instantiate(src, cfg)
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	start := time.Now()
	if _, err := inst.Call(context.Background(), "loop"); err == nil {
		t.Fatal("runaway call returned without error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("interrupt took %v", elapsed)
	}
}

func TestCallUsableAfterTimeout(t *testing.T) {
	src := []byte(`module.exports = {
	loop() { for (;;) {} },
	ok() { return 1; },
};
`)
	cfg := DefaultConfig()
	cfg.CallTimeout = 50 * time.Millisecond

	inst, err := Instantiate(src, cfg)
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	if _, err := inst.Call(context.Background(), "loop"); err == nil {
		t.Fatal("runaway call returned without error")
	}
	for i := 0; i < 10; i++ {
		out, err := inst.Call(context.Background(), "ok")
		if err != nil {
			t.Fatalf("Call(ok) after timeout error = %v", err)
		}
		if out != int64(1) {
			t.Errorf("ok() = %v, want 1", out)
		}
	}
}

func TestCallContextCancel(t *testing.T) {
	src := []byte(`module.exports = { loop() { for (;;) {} } };`)
	inst, err := Instantiate(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := inst.Call(ctx, "loop"); err == nil {
		t.Fatal("cancelled call returned without error")
	}
}

func TestCallUnknownExport(t *testing.T) {
	src := []byte(`module.exports = { a: 1 };`)
	inst, err := Instantiate(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	if _, err := inst.Call(context.Background(), "missing"); err == nil {
		t.Error("call of missing export succeeded")
	}
	if _, err := inst.Call(context.Background(), "a"); err == nil {
		t.Error("call of non-function export succeeded")
	}
}

func TestConsoleCapture(t *testing.T) {
	src := []byte(`console.log("hello", 42);
module.exports = {};
`)
	inst, err := Instantiate(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	entries := inst.Console()
	if len(entries) != 1 || entries[0].Message != "hello 42" || entries[0].Level != "log" {
		t.Errorf("Console() = %+v", entries)
	}
}

func TestCryptoShimRandomAndTimingSafe(t *testing.T) {
	src := []byte(`const crypto = require("crypto");
module.exports = {
	rand(n) { return crypto.randomBytes(n).toString("hex"); },
	eq(a, b) { return crypto.timingSafeEqual(a, b); },
};
`)
	inst, err := Instantiate(src, DefaultConfig())
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	out, err := inst.Call(context.Background(), "rand", 16)
	if err != nil {
		t.Fatalf("rand() error = %v", err)
	}
	s, ok := out.(string)
	if !ok || len(s) != 32 {
		t.Errorf("rand(16) = %v, want 32 hex chars", out)
	}

	eq, err := inst.Call(context.Background(), "eq", "abc", "abc")
	if err != nil {
		t.Fatalf("eq() error = %v", err)
	}
	if eq != true {
		t.Errorf("eq(abc, abc) = %v", eq)
	}
}
