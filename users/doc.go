// Package users 解析调用方身份，对应宿主的 Users.get_user_by_id。
//
// 提供内存实现与基于 GORM 的 postgres / sqlite 实现。
package users
