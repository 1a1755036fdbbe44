package sandbox

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"

	"github.com/dop251/goja"
	"golang.org/x/crypto/sha3"
)

// newCryptoModule builds the host-provided crypto module. It is the only
// module a loaded script can require: a subset of the platform crypto API
// backed by Go implementations, with no I/O behind any of it.
func newCryptoModule(vm *goja.Runtime) *goja.Object {
	mod := vm.NewObject()
	mod.Set("createHash", func(call goja.FunctionCall) goja.Value {
		algo := call.Argument(0).String()
		h, ok := newHash(algo)
		if !ok {
			panic(vm.NewTypeError("unsupported hash algorithm: %s", algo))
		}
		return newDigestObject(vm, h)
	})
	mod.Set("createHmac", func(call goja.FunctionCall) goja.Value {
		algo := call.Argument(0).String()
		key := toBytes(call.Argument(1))
		factory, ok := hashFactory(algo)
		if !ok {
			panic(vm.NewTypeError("unsupported hmac algorithm: %s", algo))
		}
		return newDigestObject(vm, hmac.New(factory, key))
	})
	mod.Set("randomBytes", func(call goja.FunctionCall) goja.Value {
		n := int(call.Argument(0).ToInteger())
		if n < 0 || n > 1<<16 {
			panic(vm.NewTypeError("randomBytes size out of range"))
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			panic(vm.NewGoError(err))
		}
		return newBufferObject(vm, buf)
	})
	mod.Set("timingSafeEqual", func(call goja.FunctionCall) goja.Value {
		a := toBytes(call.Argument(0))
		b := toBytes(call.Argument(1))
		if len(a) != len(b) {
			panic(vm.NewTypeError("timingSafeEqual inputs must have equal length"))
		}
		return vm.ToValue(hmac.Equal(a, b))
	})
	return mod
}

func hashFactory(algo string) (func() hash.Hash, bool) {
	switch algo {
	case "md5":
		return md5.New, true
	case "sha1":
		return sha1.New, true
	case "sha256":
		return sha256.New, true
	case "sha512":
		return sha512.New, true
	case "sha3-256":
		return sha3.New256, true
	case "sha3-512":
		return sha3.New512, true
	default:
		return nil, false
	}
}

func newHash(algo string) (hash.Hash, bool) {
	factory, ok := hashFactory(algo)
	if !ok {
		return nil, false
	}
	return factory(), true
}

// newDigestObject wraps a running hash in the update/digest shape scripts
// expect. update returns the object itself so calls chain.
func newDigestObject(vm *goja.Runtime, h hash.Hash) *goja.Object {
	obj := vm.NewObject()
	obj.Set("update", func(call goja.FunctionCall) goja.Value {
		h.Write(toBytes(call.Argument(0)))
		return obj
	})
	obj.Set("digest", func(call goja.FunctionCall) goja.Value {
		sum := h.Sum(nil)
		enc := call.Argument(0)
		if goja.IsUndefined(enc) {
			return newBufferObject(vm, sum)
		}
		return vm.ToValue(encodeBytes(vm, sum, enc.String()))
	})
	return obj
}

// newBufferObject wraps raw bytes in a minimal buffer-like object.
func newBufferObject(vm *goja.Runtime, b []byte) *goja.Object {
	obj := vm.NewObject()
	obj.Set("length", len(b))
	obj.Set("bytes", b)
	obj.Set("toString", func(call goja.FunctionCall) goja.Value {
		enc := "utf8"
		if !goja.IsUndefined(call.Argument(0)) {
			enc = call.Argument(0).String()
		}
		return vm.ToValue(encodeBytes(vm, b, enc))
	})
	return obj
}

func encodeBytes(vm *goja.Runtime, b []byte, encoding string) string {
	switch encoding {
	case "hex":
		return hex.EncodeToString(b)
	case "base64":
		return base64.StdEncoding.EncodeToString(b)
	case "utf8", "utf-8":
		return string(b)
	default:
		panic(vm.NewTypeError("unsupported encoding: %s", encoding))
	}
}

// toBytes coerces a script value to raw bytes: strings pass through as
// UTF-8, buffer-like objects contribute their bytes, anything else its
// string form.
func toBytes(v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if raw := obj.Get("bytes"); raw != nil {
			if b, ok := exportBytes(raw); ok {
				return b
			}
		}
	}
	if b, ok := exportBytes(v); ok {
		return b
	}
	return []byte(v.String())
}

func exportBytes(v goja.Value) ([]byte, bool) {
	switch b := v.Export().(type) {
	case []byte:
		return b, true
	case goja.ArrayBuffer:
		return b.Bytes(), true
	default:
		return nil, false
	}
}
