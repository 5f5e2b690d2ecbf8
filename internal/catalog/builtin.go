package catalog

import "fmt"

// 内置的 CPython C API 语义条目。覆盖常用的对象创建、容器操作和
// 引用计数宏；不在表内的函数按开放世界原则视为未知。
// 条目语义以 CPython 官方文档的引用计数约定为准。
var builtinEntries = map[string]RawEntry{
	// 对象创建：返回新引用，失败返回 NULL
	"PyList_New":          {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyDict_New":          {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyTuple_New":         {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PySet_New":           {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyLong_FromLong":     {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyLong_FromSsize_t":  {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyFloat_FromDouble":  {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyUnicode_FromString": {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyUnicode_FromFormat": {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyBytes_FromString":  {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyObject_CallObject": {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyObject_Call":       {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyObject_GetAttrString": {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyObject_GetItem":    {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyObject_Str":        {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyObject_Repr":       {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyImport_ImportModule": {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyNumber_Add":        {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyNumber_Multiply":   {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyIter_Next":         {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PySequence_GetItem":  {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyList_GetSlice":     {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyModule_Create":     {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"Py_BuildValue":       {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyDict_Keys":         {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyDict_Values":       {ReturnRefType: "new_ref", ErrorReturn: "NULL"},
	"PyDict_Items":        {ReturnRefType: "new_ref", ErrorReturn: "NULL"},

	// 借用引用访问器：返回值不归调用方所有
	"PyList_GetItem":      {ReturnRefType: "borrowed_ref", ErrorReturn: "NULL"},
	"PyTuple_GetItem":     {ReturnRefType: "borrowed_ref", ErrorReturn: "NULL"},
	"PyDict_GetItem":      {ReturnRefType: "borrowed_ref", ErrorReturn: "NULL"},
	"PyDict_GetItemString": {ReturnRefType: "borrowed_ref", ErrorReturn: "NULL"},
	"PyDict_GetItemWithError": {ReturnRefType: "borrowed_ref", ErrorReturn: "NULL"},
	"PyErr_Occurred":      {ReturnRefType: "borrowed_ref", ErrorReturn: "none"},
	"PySys_GetObject":     {ReturnRefType: "borrowed_ref", ErrorReturn: "NULL"},
	"PyModule_GetDict":    {ReturnRefType: "borrowed_ref", ErrorReturn: "NULL"},

	// steal 型写入器：即使失败也消耗被插入项的引用
	"PyList_SetItem":  {ReturnRefType: "none", ArgRefSteal: map[string]bool{"2": true}, ErrorReturn: -1},
	"PyTuple_SetItem": {ReturnRefType: "none", ArgRefSteal: map[string]bool{"2": true}, ErrorReturn: -1},
	"PyModule_AddObject": {
		// 历史遗留接口：仅成功时 steal，失败路径上调用方仍持有引用
		ReturnRefType: "none",
		ArgRefSteal:   map[string]bool{"2": true},
		ErrorReturn:   -1,
		StealOn:       "success",
	},
	"PyStructSequence_SetItem": {ReturnRefType: "none", ArgRefSteal: map[string]bool{"2": true}, ErrorReturn: "none"},

	// 非 steal 型写入器：内部自行 incref
	"PyList_Append":        {ReturnRefType: "none", ErrorReturn: -1},
	"PyList_Insert":        {ReturnRefType: "none", ErrorReturn: -1},
	"PyDict_SetItem":       {ReturnRefType: "none", ErrorReturn: -1},
	"PyDict_SetItemString": {ReturnRefType: "none", ErrorReturn: -1},
	"PySet_Add":            {ReturnRefType: "none", ErrorReturn: -1},
	"PyObject_SetAttrString": {ReturnRefType: "none", ErrorReturn: -1},
	"PyObject_SetItem":     {ReturnRefType: "none", ErrorReturn: -1},

	// 引用计数宏：操作第 0 个实参
	"Py_INCREF":  {ReturnRefType: "none", ArgRefIncr: map[string]bool{"0": true}, ErrorReturn: "none"},
	"Py_XINCREF": {ReturnRefType: "none", ArgRefIncr: map[string]bool{"0": true}, ErrorReturn: "none"},
	"Py_DECREF":  {ReturnRefType: "none", ArgRefDecr: map[string]bool{"0": true}, ErrorReturn: "none"},
	"Py_XDECREF": {ReturnRefType: "none", ArgRefDecr: map[string]bool{"0": true}, ErrorReturn: "none"},
	"Py_CLEAR":   {ReturnRefType: "none", ArgRefDecr: map[string]bool{"0": true}, ErrorReturn: "none"},

	// 解析与判定：无引用语义，只有错误哨兵
	"PyArg_ParseTuple":            {ReturnRefType: "none", ErrorReturn: 0},
	"PyArg_ParseTupleAndKeywords": {ReturnRefType: "none", ErrorReturn: 0},
	"PyLong_AsLong":               {ReturnRefType: "none", ErrorReturn: -1},
	"PyFloat_AsDouble":            {ReturnRefType: "none", ErrorReturn: -1},
	"PyObject_IsTrue":             {ReturnRefType: "none", ErrorReturn: -1},
	"PyList_Size":                 {ReturnRefType: "none", ErrorReturn: -1},
	"PyDict_Size":                 {ReturnRefType: "none", ErrorReturn: -1},
	"PySequence_Size":             {ReturnRefType: "none", ErrorReturn: -1},
	"PySequence_Length":           {ReturnRefType: "none", ErrorReturn: -1},
}

// LoadBuiltins 把内置条目以最低优先级合并进目录。
// 内置表是手写的，验证失败说明表本身有错，直接报错而不是降级为警告。
func LoadBuiltins(c *Catalog) error {
	warnings, err := c.Merge(builtinEntries, SourceBuiltin)
	if err != nil {
		return err
	}
	if len(warnings) > 0 {
		return fmt.Errorf("builtin catalog table is malformed: %s", warnings[0])
	}
	return nil
}
