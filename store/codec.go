package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	otpRecordVersionV1     = 1
	sessionRecordVersionV1 = 1
)

func encodeOTPRecord(rec OTPRecord) ([]byte, error) {
	if rec.Attempts < 0 || rec.Attempts > 65535 {
		return nil, errors.New("otp record attempts out of range")
	}
	if len(rec.HashedCode) > 65535 {
		return nil, errors.New("otp record hash too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 2 + 8 + 8 + 2 + len(rec.HashedCode))
	buf.WriteByte(otpRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, uint16(rec.Attempts)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, unixNano(rec.ExpiresAt)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, unixNano(rec.LastAttemptAt)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.HashedCode))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.HashedCode)

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if version != otpRecordVersionV1 {
		return nil, fmt.Errorf("%w: unknown otp record version %d", ErrCorruptRecord, version)
	}

	var (
		attempts  uint16
		expiresAt int64
		lastTry   int64
		hashLen   uint16
	)
	for _, field := range []any{&attempts, &expiresAt, &lastTry, &hashLen} {
		if err := binary.Read(reader, binary.BigEndian, field); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
	}

	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(reader, hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	return &OTPRecord{
		HashedCode:    string(hash),
		ExpiresAt:     fromUnixNano(expiresAt),
		Attempts:      int(attempts),
		LastAttemptAt: fromUnixNano(lastTry),
	}, nil
}

func encodeSessionRecord(rec SessionRecord) ([]byte, error) {
	if len(rec.Email) > 65535 {
		return nil, errors.New("session record email too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 8 + 2 + len(rec.Email))
	buf.WriteByte(sessionRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, unixNano(rec.CreatedAt)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.Email)

	return buf.Bytes(), nil
}

func decodeSessionRecord(id string, data []byte) (*SessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if version != sessionRecordVersionV1 {
		return nil, fmt.Errorf("%w: unknown session record version %d", ErrCorruptRecord, version)
	}

	var (
		createdAt int64
		emailLen  uint16
	)
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	return &SessionRecord{
		ID:        id,
		Email:     string(email),
		CreatedAt: fromUnixNano(createdAt),
	}, nil
}

// zero time encodes as 0 so it survives a round trip.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
