package entity

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 唯一键冲突
	ErrDuplicate = errors.New("record already exists")
	// ErrInvalidTransition 非法的状态迁移
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTerminalGeneration 生成已处于终态，不可再修改
	ErrTerminalGeneration = errors.New("generation already terminal")
)
