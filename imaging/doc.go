/*
Package imaging 负责增强流程的前半段：下载图片、转码为 PNG、编码为 base64 prompt。

解码支持标准库的 png / jpeg / gif，以及 golang.org/x/image 提供的
webp / bmp / tiff。
*/
package imaging
