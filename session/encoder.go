package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

const (
	flagIsUse     = 1 << 0
	flagIsActive  = 1 << 1
	flagHasBranch = 1 << 2
)

// Encode serializes a session record into the versioned binary format.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"username", s.Username},
		{"displayName", s.DisplayName},
		{"role", s.Role},
		{"roleDisplayName", s.RoleDisplayName},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	var flags byte
	if s.IsUse {
		flags |= flagIsUse
	}
	if s.IsActive {
		flags |= flagIsActive
	}
	if s.BranchID != nil {
		flags |= flagHasBranch
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, s.UserID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.RoleID); err != nil {
		return nil, err
	}
	if s.BranchID != nil {
		if err := binary.Write(&buf, binary.BigEndian, *s.BranchID); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastValidatedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a stored record. The caller stamps SessionID afterwards;
// the record body never repeats its own key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	for _, target := range []*string{&s.Username, &s.DisplayName, &s.Role, &s.RoleDisplayName} {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*target = string(raw)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.IsUse = flags&flagIsUse != 0
	s.IsActive = flags&flagIsActive != 0

	if err := binary.Read(reader, binary.BigEndian, &s.UserID); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.RoleID); err != nil {
		return nil, err
	}
	if flags&flagHasBranch != 0 {
		var branch int64
		if err := binary.Read(reader, binary.BigEndian, &branch); err != nil {
			return nil, err
		}
		s.BranchID = &branch
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.LastValidatedAt); err != nil {
		return nil, err
	}

	return s, nil
}
