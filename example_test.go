// example_test.go 包含 logrollx 的用法示例。

package logrollx_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gitee.com/MM-Q/logrollx"
)

// 将滚动写入器交给标准库 log 使用，归档按天压缩为 gzip，保留 7 天。
func Example() {
	dir, err := os.MkdirTemp("", "logrollx-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := logrollx.NewContext()
	ctx.Start()
	defer ctx.Stop(30 * time.Second)

	policy := logrollx.NewTimeBasedRollingPolicy(ctx, filepath.Join(dir, "app-%d{yyyy-MM-dd}.log.gz"))
	policy.MaxHistory = 7
	app := logrollx.NewRollingFileAppender(ctx, "app", filepath.Join(dir, "app.log"), policy)
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	defer app.Stop()

	logger := log.New(app, "", 0)
	logger.Println("service started")

	b, _ := os.ReadFile(filepath.Join(dir, "app.log"))
	fmt.Print(string(b))
	// Output: service started
}

// 同一天内活动文件超过 MaxFileSize 时按计数器滚动；没有设置活动文件时直接写入当前归档名。
func ExampleConfig_Build() {
	dir, err := os.MkdirTemp("", "logrollx-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cfg, err := logrollx.ParseConfig([]byte(`
name: worker
fileNamePattern: ` + filepath.ToSlash(filepath.Join(dir, "worker-%d{yyyy-MM}.%i.log")) + `
maxFileSize: 10MB
maxHistory: 12
totalSizeCap: 1GB
`))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(cfg.MaxFileSize, cfg.TotalSizeCap)

	app, err := cfg.Build(nil)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Context().Stop(time.Second)
	defer app.Stop()

	fmt.Println(filepath.Base(app.ActiveName()) == "worker-"+time.Now().Format("2006-01")+".0.log")
	// Output:
	// 10MiB 1GiB
	// true
}

func ExampleParseFileSize() {
	size, err := logrollx.ParseFileSize("64KB")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(int64(size), size)
	// Output: 65536 64KiB
}
