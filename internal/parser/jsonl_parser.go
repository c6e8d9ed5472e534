package parser

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// jsonlEntry 表示 JSONL 中的一行，兼容 id / description 两种字段名
type jsonlEntry struct {
	ClaimID          string `json:"claim_id"`
	ClaimDescription string `json:"claim_description"`
	ID               string `json:"id"`
	Description      string `json:"description"`
}

// DecryptFile 解密 AES-256-GCM 加密的文件
// 文件格式: salt(16) + nonce(16) + tag(16) + ciphertext
func DecryptFile(path string, password string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Decrypt(data, password)
}

func Decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < 48 {
		return nil, fmt.Errorf("file too small")
	}

	salt := data[:16]
	nonce := data[16:32]
	tag := data[32:48]
	ciphertext := data[48:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	// GCM 的 decrypt 需要 ciphertext+tag 拼在一起
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

// ParseJSONLFile 解析未加密的 JSONL 导出
func ParseJSONLFile(path string) ([]Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseJSONLBytes(data)
}

// ParseJSONLBytes 每行一条记录，无法解析的行跳过
func ParseJSONLBytes(data []byte) ([]Claim, error) {
	var claims []Claim

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry jsonlEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Warn("skip malformed jsonl line", "line", lineNum, "error", err)
			continue
		}

		c := Claim{ID: entry.ClaimID, Description: entry.ClaimDescription}
		if c.ID == "" {
			c.ID = entry.ID
		}
		if c.Description == "" {
			c.Description = entry.Description
		}
		claims = append(claims, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return claims, nil
}
