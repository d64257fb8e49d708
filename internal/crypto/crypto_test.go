package crypto

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func drawKey(t *rapid.T, label string) []byte {
	return rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, label)
}

func testEnvelope_Roundtrip_Properties(t *rapid.T) {
	kek := drawKey(t, "kek")
	dek := drawKey(t, "dek")

	sealed1, err := EncryptDEK(kek, dek)
	if err != nil {
		t.Fatalf("EncryptDEK: %v", err)
	}
	sealed2, err := EncryptDEK(kek, dek)
	if err != nil {
		t.Fatalf("EncryptDEK: %v", err)
	}
	if len(sealed1) != NonceSize+DEKSize+gcmTagSize {
		t.Fatalf("sealed length %d", len(sealed1))
	}
	if bytes.Equal(sealed1, sealed2) {
		t.Fatal("two seals of the same DEK must differ (random nonce)")
	}

	got, err := DecryptDEK(kek, sealed1)
	if err != nil {
		t.Fatalf("DecryptDEK: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Fatal("roundtrip mismatch")
	}

	// Any flipped bit must fail authentication.
	idx := rapid.IntRange(0, len(sealed1)-1).Draw(t, "idx")
	tampered := append([]byte(nil), sealed1...)
	tampered[idx] ^= 0x01
	if _, err := DecryptDEK(kek, tampered); err == nil {
		t.Fatalf("tampered byte %d was accepted", idx)
	}

	other := drawKey(t, "other")
	if !bytes.Equal(other, kek) {
		if _, err := DecryptDEK(other, sealed1); err == nil {
			t.Fatal("wrong KEK decrypted the DEK")
		}
	}

	cut := rapid.IntRange(0, NonceSize+gcmTagSize-1).Draw(t, "cut")
	if _, err := DecryptDEK(kek, sealed1[:cut]); err == nil {
		t.Fatal("truncated ciphertext accepted")
	}
}

func TestEnvelope_Roundtrip_Properties(t *testing.T) {
	rapid.Check(t, testEnvelope_Roundtrip_Properties)
}

func FuzzEnvelope_Roundtrip_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testEnvelope_Roundtrip_Properties))
}

func testDeriveKEK_Properties(t *rapid.T) {
	master := drawKey(t, "master")
	userA := rapid.StringMatching(`user-[a-z0-9]{1,12}`).Draw(t, "userA")
	userB := rapid.StringMatching(`user-[a-z0-9]{1,12}`).Draw(t, "userB")
	version := rapid.IntRange(1, 1000).Draw(t, "version")

	kek := DeriveKEK(master, userA, version)
	if len(kek) != KEKSize {
		t.Fatalf("KEK length %d", len(kek))
	}
	if !bytes.Equal(kek, DeriveKEK(master, userA, version)) {
		t.Fatal("DeriveKEK is not deterministic")
	}
	if bytes.Equal(kek, DeriveKEK(master, userA, version+1)) {
		t.Fatal("versions must derive different KEKs")
	}
	if userA != userB && bytes.Equal(kek, DeriveKEK(master, userB, version)) {
		t.Fatal("users must derive different KEKs")
	}
}

func TestDeriveKEK_Properties(t *testing.T) {
	rapid.Check(t, testDeriveKEK_Properties)
}

func FuzzDeriveKEK_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testDeriveKEK_Properties))
}

func TestEncryptDEK_RejectsBadSizes(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	if _, err := EncryptDEK(key[:16], key); err == nil {
		t.Fatal("short KEK accepted")
	}
	if _, err := EncryptDEK(key, key[:31]); err == nil {
		t.Fatal("short DEK accepted")
	}
	dek, err := GenerateDEK()
	if err != nil || len(dek) != DEKSize {
		t.Fatalf("GenerateDEK: len=%d err=%v", len(dek), err)
	}
}
