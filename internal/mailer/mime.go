package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

type attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// buildMultipart returns the Content-Type header value and the
// multipart/mixed body carrying the text and the attachment.
func buildMultipart(text string, att attachment) (string, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return "", "", err
	}
	if _, err := textPart.Write([]byte(text)); err != nil {
		return "", "", err
	}

	attHeader := textproto.MIMEHeader{}
	attHeader.Set("Content-Type", att.ContentType)
	attHeader.Set("Content-Transfer-Encoding", "base64")
	attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
	attPart, err := writer.CreatePart(attHeader)
	if err != nil {
		return "", "", err
	}

	encoded := base64.StdEncoding.EncodeToString(att.Data)
	// 76-character lines per RFC 2045
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		if _, err := attPart.Write([]byte(encoded[i:end] + "\r\n")); err != nil {
			return "", "", err
		}
	}

	if err := writer.Close(); err != nil {
		return "", "", err
	}
	return "multipart/mixed; boundary=" + writer.Boundary(), buf.String(), nil
}

// buildEncrypted wraps a MIME entity in a PGP/MIME envelope (RFC 3156).
func buildEncrypted(header, body, armoredKey string) (string, string, error) {
	inner := "Content-Type: " + header + "\r\n\r\n" + body
	encrypted, err := encryptWithPGP([]byte(inner), armoredKey)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	envelope := multipart.NewWriter(&buf)

	versionHeader := textproto.MIMEHeader{}
	versionHeader.Set("Content-Type", "application/pgp-encrypted")
	versionPart, err := envelope.CreatePart(versionHeader)
	if err != nil {
		return "", "", err
	}
	if _, err := versionPart.Write([]byte("Version: 1\r\n")); err != nil {
		return "", "", err
	}

	encHeader := textproto.MIMEHeader{}
	encHeader.Set("Content-Type", "application/octet-stream")
	encPart, err := envelope.CreatePart(encHeader)
	if err != nil {
		return "", "", err
	}
	if _, err := encPart.Write(encrypted); err != nil {
		return "", "", err
	}

	if err := envelope.Close(); err != nil {
		return "", "", err
	}
	outer := fmt.Sprintf("multipart/encrypted; protocol=\"application/pgp-encrypted\"; boundary=%s", envelope.Boundary())
	return outer, buf.String(), nil
}

func encryptWithPGP(plaintext []byte, armoredKey string) ([]byte, error) {
	entityList, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	if err != nil {
		return nil, fmt.Errorf("creating armor writer: %w", err)
	}
	encWriter, err := openpgp.Encrypt(armorWriter, entityList, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating encrypt writer: %w", err)
	}
	if _, err := encWriter.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return nil, err
	}
	if err := armorWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
