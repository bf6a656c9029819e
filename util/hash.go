package util

import (
	"crypto/md5"
	"encoding/base64"
	"io"
	"os"
)

// FileMD5Base64 计算本地文件的 MD5，返回 Content-MD5 头使用的 base64 形式
func FileMD5Base64(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, src); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}
