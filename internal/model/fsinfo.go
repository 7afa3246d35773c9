// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// FSInfo links a parsed block back to the file it was declared in, so that
// errors can name the file.
package model

type FSInfo struct {
	FilePath string
}

func NewFSInfo(filePath string) *FSInfo {
	return &FSInfo{
		FilePath: filePath,
	}
}
