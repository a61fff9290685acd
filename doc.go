// logrollx 是一个按时间、按大小滚动日志文件的引擎。
// 它并非日志库，而是日志记录栈底层的一个可插拔写入器，可以与任何能够写入 io.Writer 的日志记录包配合使用，
// 例如标准库的 log、log/slog，或经由 zapcore.AddSync 接入 zap。
//
// 归档文件名由模式描述，例如 "logs/app-%d{yyyy-MM-dd}.%i.log.gz"：
//
//	%d{...}  日期转换符，日期格式沿用 Java 的字母，省略时为 yyyy-MM-dd
//	%i       计数器，同一周期内因大小触发的滚动使其递增
//	.gz/.zip 模式以此结尾时归档在后台压缩
//
// 最小用法:
//
//	ctx := logrollx.NewContext()
//	ctx.Start()
//	defer ctx.Stop(30 * time.Second)
//
//	policy := logrollx.NewTimeBasedRollingPolicy(ctx, "logs/app-%d{yyyy-MM-dd}.log.gz")
//	policy.MaxHistory = 7
//	app := logrollx.NewRollingFileAppender(ctx, "app", "logs/app.log", policy)
//	if err := app.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer app.Stop()
//	log.SetOutput(app)
//
// 谨慎模式（Prudent）允许多个进程写同一个文件，每次写入都持有文件锁；此模式下不支持压缩。
package logrollx
