// Package tlsutil 提供出站 HTTP 客户端的统一构造：
// TLS 1.2+、仅 AEAD 密码套件、有界的重定向跟随。
// 图像下载与各生成后端共用这里的 Transport 设置。
package tlsutil
