package estado

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GrainArc/CemDownloader/cem"
	"github.com/mholt/archiver/v3"
)

// Result 整州下载结果
type Result struct {
	ZipPath string
	Rasters []string
}

// BuildEstadoURL 构建INEGI DownloadFile.do的整州ZIP地址
// R15的包名带_TIF后缀，其余分辨率为BIL包
func BuildEstadoURL(base, build, entidad, cve string, resM int) (string, error) {
	if !cem.IsValidResolution(resM) {
		return "", &cem.InvalidResolutionError{Res: resM}
	}

	var fname string
	if resM == 15 {
		fname = fmt.Sprintf("CEM_V3_%s_R%d_E%s_TIF.zip", build, resM, cve)
	} else {
		fname = fmt.Sprintf("CEM_V3_%s_R%d_E%s.zip", build, resM, cve)
	}

	q := url.Values{}
	q.Set("file", fname)
	q.Set("res", strconv.Itoa(resM))
	q.Set("entidad", entidad)
	return base + "?" + q.Encode(), nil
}

// DownloadEstado 下载整州CEM包并解压，返回发现的栅格文件列表
func DownloadEstado(ctx context.Context, fetcher cem.CoverageFetcher, base, build, entidad, cve string, resM int, destRoot string, sink cem.StatusSink) (*Result, error) {
	if sink == nil {
		sink = cem.NopSink{}
	}

	estadoURL, err := BuildEstadoURL(base, build, entidad, cve, resM)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(destRoot, fmt.Sprintf("estado_%s_%dm", cve, resM))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	zipPath := filepath.Join(dir, "cem_estado.zip")

	sink.Step(0, 1, fmt.Sprintf("正在下载整州数据包: %s", estadoURL))
	if err := fetcher.FetchToFile(ctx, estadoURL, zipPath, sink.Bytes); err != nil {
		return nil, err
	}

	sink.Step(0, 1, "下载完成，正在解压")
	if err := Unpack(zipPath, dir); err != nil {
		return nil, fmt.Errorf("解压失败: %w", err)
	}

	rasters := GuessRasterFiles(dir)
	sink.Step(1, 1, fmt.Sprintf("解压完成，发现 %d 个栅格文件", len(rasters)))
	return &Result{ZipPath: zipPath, Rasters: rasters}, nil
}

// Unpack 解压数据包，zip走标准库，其余格式交给archiver
func Unpack(src, dest string) error {
	if strings.EqualFold(filepath.Ext(src), ".zip") {
		return unpackZip(src, dest)
	}
	return archiver.Unarchive(src, dest)
}

func unpackZip(src, dest string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := extractFile(file, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(zf *zip.File, dest string) error {
	fpath := filepath.Join(dest, zf.Name)

	// 防止解压到目标目录之外
	if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%s: illegal file path", fpath)
	}

	if zf.FileInfo().IsDir() {
		return os.MkdirAll(fpath, os.ModePerm)
	}

	if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
		return err
	}
	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode())
	if err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		outFile.Close()
		return err
	}
	_, err = io.Copy(outFile, rc)
	rc.Close()
	outFile.Close()
	return err
}

// GuessRasterFiles 递归扫描CEM包中常见的栅格文件
func GuessRasterFiles(root string) []string {
	exts := map[string]bool{".tif": true, ".tiff": true, ".bil": true, ".img": true}
	var out []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			out = append(out, path)
		}
		return nil
	})
	return out
}
