package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/EBMC/internal/domain"
)

// FoundDirPrefix 是整理输出目录的前缀：<root>/found_on_<source>/。
const FoundDirPrefix = "found_on_"

var bookExts = map[string]struct{}{
	".epub": {}, ".pdf": {}, ".mobi": {}, ".azw": {}, ".azw3": {}, ".djvu": {},
	".fb2": {}, ".txt": {}, ".doc": {}, ".docx": {}, ".rtf": {},
}

// IsBookExt 判断扩展名（含点，大小写不敏感）是否为支持的电子书格式。
func IsBookExt(ext string) bool {
	_, ok := bookExts[strings.ToLower(ext)]
	return ok
}

// ScanBooks 扫描 root 下的电子书文件，并应用目录排除规则。
//
// 规则（硬约束）：
// - 永久排除：<root>/cache/ 与顶层的 found_on_*/（已整理的结果不会被二次处理）
// - 隐藏文件与隐藏目录（以 "." 开头）跳过
// - excludeDirs：来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanBooks(root string, excludeDirs []string) ([]domain.BookFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.BookFile, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if skip(root, path, d, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		ext := filepath.Ext(name)
		if !IsBookExt(ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, domain.BookFile{
			AbsPath: path,
			RelPath: rel,
			Base:    strings.TrimSuffix(name, ext),
			Ext:     ext,
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func skip(root, path string, d fs.DirEntry, excluded []string) bool {
	if strings.HasPrefix(d.Name(), ".") {
		return true
	}
	if d.IsDir() && filepath.Dir(path) == root && strings.HasPrefix(d.Name(), FoundDirPrefix) {
		return true
	}
	return isExcluded(path, excluded)
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	excluded = append(excluded, filepath.Join(root, "cache"))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
