package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/gatekeeper/permission"
)

const sessionFormatVersionCurrent = 1

// ErrCorruptRecord is returned when a stored session blob cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt session record")

// Encode serializes the immutable part of s. LastAccessedAt is stored
// separately by backends that update it in place.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.ID) > 255 {
		return nil, errors.New("session id too long")
	}
	buf.WriteByte(byte(len(s.ID)))
	buf.WriteString(s.ID)

	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	buf.WriteByte(byte(s.Role))
	buf.Write(s.TokenHash[:])
	buf.Write(s.CSRFSecret[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != sessionFormatVersionCurrent {
		return nil, ErrCorruptRecord
	}

	s := &Session{}

	id, err := readString(reader)
	if err != nil {
		return nil, ErrCorruptRecord
	}
	s.ID = id

	userID, err := readString(reader)
	if err != nil {
		return nil, ErrCorruptRecord
	}
	s.UserID = userID

	role, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	s.Role = permission.Role(role)

	if _, err := io.ReadFull(reader, s.TokenHash[:]); err != nil {
		return nil, ErrCorruptRecord
	}
	if _, err := io.ReadFull(reader, s.CSRFSecret[:]); err != nil {
		return nil, ErrCorruptRecord
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, ErrCorruptRecord
	}
	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}
	s.CreatedAt = time.UnixMilli(created)
	s.ExpiresAt = time.UnixMilli(expires)
	s.LastAccessedAt = s.CreatedAt

	return s, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
