// Package report 生成联系表单提交的 Excel 报表。
package report

import (
	"context"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"portfolio/backend/internal/domain"
)

const (
	// SubmissionsSheet 明细工作表名称
	SubmissionsSheet = "Contact Submissions"
	// SummarySheet 汇总工作表名称
	SummarySheet = "Summary"

	// DateLayout 提交时间的展示格式
	DateLayout = "02 Jan 2006, 03:04 PM"

	notProvided = "Not provided"
	unknownIP   = "Unknown"
)

var submissionColumns = []struct {
	header string
	width  float64
}{
	{"Sr. No.", 8},
	{"Submission Date", 22},
	{"Name", 25},
	{"Email", 35},
	{"Phone", 18},
	{"LinkedIn/Naukri Profile", 40},
	{"Message", 60},
	{"Status", 12},
	{"IP Address", 16},
	{"Contact ID", 38},
}

// 状态单元格配色：背景色、字体色
var statusColors = map[domain.SubmissionStatus][2]string{
	domain.StatusNew:      {"E3F2FD", "1976D2"},
	domain.StatusRead:     {"FFF3E0", "F57C00"},
	domain.StatusReplied:  {"E8F5E8", "388E3C"},
	domain.StatusArchived: {"FAFAFA", "757575"},
}

// Lister 报表数据来源
type Lister interface {
	ListAllByRecency(ctx context.Context) ([]domain.Submission, error)
}

// Error 报表生成失败
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("report %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Builder 从存储读取全部提交并生成 xlsx 工作簿
type Builder struct {
	source   Lister
	location *time.Location
	now      func() time.Time
}

// NewBuilder 创建报表构建器，loc 为空时使用 UTC
func NewBuilder(source Lister, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{source: source, location: loc, now: time.Now}
}

// FileName 返回附件文件名，例如 contact-database-2024-03-01.xlsx
func FileName(now time.Time) string {
	return fmt.Sprintf("contact-database-%s.xlsx", now.Format("2006-01-02"))
}

// Build 生成包含明细与汇总两个工作表的 xlsx 文件内容
func (b *Builder) Build(ctx context.Context) ([]byte, error) {
	submissions, err := b.source.ListAllByRecency(ctx)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}

	f := excelize.NewFile()
	defer f.Close()

	generatedAt := b.now()
	if err := f.SetDocProps(&excelize.DocProperties{
		Creator:        "Portfolio Backend",
		LastModifiedBy: "Portfolio Backend",
		Title:          "Contact Submissions",
		Created:        generatedAt.UTC().Format(time.RFC3339),
		Modified:       generatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, &Error{Op: "properties", Err: err}
	}

	if err := f.SetSheetName("Sheet1", SubmissionsSheet); err != nil {
		return nil, &Error{Op: "sheet", Err: err}
	}
	if err := b.writeSubmissions(f, submissions); err != nil {
		return nil, &Error{Op: "submissions", Err: err}
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, &Error{Op: "sheet", Err: err}
	}
	if err := b.writeSummary(f, submissions, generatedAt); err != nil {
		return nil, &Error{Op: "summary", Err: err}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, &Error{Op: "write", Err: err}
	}
	return buf.Bytes(), nil
}

func (b *Builder) writeSubmissions(f *excelize.File, submissions []domain.Submission) error {
	tab := "667EEA"
	if err := f.SetSheetProps(SubmissionsSheet, &excelize.SheetPropsOptions{TabColorRGB: &tab}); err != nil {
		return err
	}

	header := make([]interface{}, 0, len(submissionColumns))
	for i, col := range submissionColumns {
		header = append(header, col.header)
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SubmissionsSheet, name, name, col.width); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(SubmissionsSheet, "A1", &header); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"667EEA"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    borders("000000"),
	})
	if err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(submissionColumns))
	if err := f.SetCellStyle(SubmissionsSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}
	if err := f.SetRowHeight(SubmissionsSheet, 1, 25); err != nil {
		return err
	}

	evenStyle, err := f.NewStyle(dataStyle("F8F9FA"))
	if err != nil {
		return err
	}
	oddStyle, err := f.NewStyle(dataStyle(""))
	if err != nil {
		return err
	}
	statusStyles := make(map[domain.SubmissionStatus]int, len(statusColors))
	for status, colors := range statusColors {
		style := dataStyle(colors[0])
		style.Font = &excelize.Font{Bold: true, Color: colors[1]}
		id, err := f.NewStyle(style)
		if err != nil {
			return err
		}
		statusStyles[status] = id
	}

	for i, sub := range submissions {
		rowNum := i + 2
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := b.row(i, sub)
		if err := f.SetSheetRow(SubmissionsSheet, cell, &row); err != nil {
			return err
		}

		style := oddStyle
		if i%2 == 0 {
			style = evenStyle
		}
		if err := f.SetCellStyle(SubmissionsSheet, cell, fmt.Sprintf("%s%d", lastCol, rowNum), style); err != nil {
			return err
		}
		if id, ok := statusStyles[sub.Status]; ok {
			statusCell := fmt.Sprintf("H%d", rowNum)
			if err := f.SetCellStyle(SubmissionsSheet, statusCell, statusCell, id); err != nil {
				return err
			}
		}
	}

	return f.SetPanes(SubmissionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// row 生成一行明细数据
func (b *Builder) row(index int, sub domain.Submission) []interface{} {
	ip := sub.IPAddress
	if ip == "" {
		ip = unknownIP
	}
	return []interface{}{
		index + 1,
		sub.CreatedAt.In(b.location).Format(DateLayout),
		sub.Name,
		sub.Email,
		orNotProvided(sub.Phone),
		orNotProvided(sub.LinkedinProfile),
		html.UnescapeString(sub.Message),
		strings.ToUpper(string(sub.Status)),
		ip,
		sub.ID,
	}
}

func (b *Builder) writeSummary(f *excelize.File, submissions []domain.Submission, generatedAt time.Time) error {
	tab := "28A745"
	if err := f.SetSheetProps(SummarySheet, &excelize.SheetPropsOptions{TabColorRGB: &tab}); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 25); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "B", "C", 22); err != nil {
		return err
	}

	counts := make(map[domain.SubmissionStatus]int, len(domain.AllStatuses))
	for _, sub := range submissions {
		counts[sub.Status]++
	}
	total := len(submissions)

	rows := [][]interface{}{
		{"Metric", "Value", "Percentage"},
		{"Total Contacts", total, "100%"},
	}
	for _, status := range domain.AllStatuses {
		label := strings.ToUpper(string(status)[:1]) + string(status)[1:] + " Contacts"
		rows = append(rows, []interface{}{label, counts[status], Percentage(counts[status], total)})
	}
	rows = append(rows, []interface{}{"Generated On", generatedAt.In(b.location).Format(DateLayout), ""})

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"28A745"}},
	})
	if err != nil {
		return err
	}
	return f.SetCellStyle(SummarySheet, "A1", "C1", headerStyle)
}

// Percentage 返回 round(count/total*100)%，total 为 0 时返回 0%
func Percentage(count, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", int(math.Round(float64(count)/float64(total)*100)))
}

func orNotProvided(v *string) string {
	if v == nil || *v == "" {
		return notProvided
	}
	return *v
}

func dataStyle(fill string) *excelize.Style {
	style := &excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    borders("E0E0E0"),
	}
	if fill != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fill}}
	}
	return style
}

func borders(color string) []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: color, Style: 1},
		{Type: "top", Color: color, Style: 1},
		{Type: "right", Color: color, Style: 1},
		{Type: "bottom", Color: color, Style: 1},
	}
}
